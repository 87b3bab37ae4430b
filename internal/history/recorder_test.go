package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/drowsy/internal/event"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	err    error
}

func (m *memSink) Send(ctx context.Context, e Event) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func at(ms int64) time.Time { return time.UnixMilli(ms) }

func publish(t *testing.T, bus *event.Bus, evs ...event.Event) {
	t.Helper()
	for _, e := range evs {
		require.NoError(t, bus.Publish(e))
	}
}

func TestRecorderRecordsTransitionsOnly(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder("s1", sink, RecorderOptions{})
	bus := event.NewBus()
	require.NoError(t, bus.Register(r))

	publish(t, bus,
		event.AwakeEvent{At: at(100), PERCLOS: 0},
		event.AwakeEvent{At: at(200), PERCLOS: 0.01},
		event.DrowsyEvent{At: at(300), PERCLOS: 0.2},
		event.DrowsyEvent{At: at(400), PERCLOS: 0.25},
		event.LikelyDrowsyEvent{At: at(500), PERCLOS: 0.1},
	)
	require.NoError(t, r.Close(context.Background()))

	got := sink.Events()
	require.Len(t, got, 3)
	assert.Equal(t, Event{
		Type:       EventStateChange,
		OccurredAt: at(300),
		Record:     Record{SessionID: "s1", State: "drowsy", Previous: "awake", PERCLOS: 0.2},
	}, got[1])
	assert.Equal(t, "", got[0].Record.Previous)
	assert.Equal(t, "likely_drowsy", got[2].Record.State)
}

func TestRecorderSlowClosureAndPresence(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder("s2", sink, RecorderOptions{})
	bus := event.NewBus()
	require.NoError(t, bus.Register(r))

	publish(t, bus,
		event.PendingSlowEyelidClosureEvent{ClosedAt: at(0), Duration: 600 * time.Millisecond},
		event.SlowEyelidClosureEvent{ClosedAt: at(0), Duration: 700 * time.Millisecond},
		event.NormalEyeBlinkEvent{ClosedAt: at(1000), Duration: 100 * time.Millisecond},
		event.AppActiveEvent{At: at(5)},
		event.AppIdleEvent{At: at(6)},
	)
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, []Event{
		{Type: EventSlowClosure, OccurredAt: at(700), Record: Record{SessionID: "s2", ClosedAt: at(0), DurationMS: 700}},
		{Type: EventPresence, OccurredAt: at(5), Record: Record{SessionID: "s2", State: "active"}},
		{Type: EventPresence, OccurredAt: at(6), Record: Record{SessionID: "s2", State: "idle"}},
	}, sink.Events())
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	sink := &memSink{block: make(chan struct{})}
	r := NewRecorder("s3", sink, RecorderOptions{QueueSize: 1})
	bus := event.NewBus()
	require.NoError(t, bus.Register(r))

	// one event blocks in the sink and one waits in the queue
	for i := int64(0); i < 4; i++ {
		publish(t, bus, event.AppActiveEvent{At: at(i)}, event.AppIdleEvent{At: at(i)})
	}
	_, _, dropped := r.Stats()
	assert.GreaterOrEqual(t, dropped, uint64(5))

	close(sink.block)
	require.NoError(t, r.Close(context.Background()))
	sent, _, _ := r.Stats()
	assert.LessOrEqual(t, sent, uint64(2))
}

func TestRecorderSinkErrorsAreCounted(t *testing.T) {
	sink := &memSink{err: errors.New("unavailable")}
	r := NewRecorder("s4", sink, RecorderOptions{})
	bus := event.NewBus()
	require.NoError(t, bus.Register(r))

	publish(t, bus, event.DrowsyEvent{At: at(1), PERCLOS: 0.5})
	require.NoError(t, r.Close(context.Background()))
	_, failed, _ := r.Stats()
	assert.EqualValues(t, 1, failed)
}

func TestRecorderCloseIsIdempotentAndIgnoresLateEvents(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder("s5", sink, RecorderOptions{})
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	bus := event.NewBus()
	require.NoError(t, bus.Register(r))
	publish(t, bus, event.AppIdleEvent{At: at(1)})
	assert.Empty(t, sink.Events())
}

func TestRecorderCloseHonoursContext(t *testing.T) {
	sink := &memSink{block: make(chan struct{})}
	r := NewRecorder("s6", sink, RecorderOptions{SendTimeout: time.Minute})
	bus := event.NewBus()
	require.NoError(t, bus.Register(r))
	publish(t, bus, event.AppIdleEvent{At: at(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	close(sink.block)
}
