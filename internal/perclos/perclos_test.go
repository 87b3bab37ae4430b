package perclos

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/window"
)

func at(ms int64) time.Time { return time.UnixMilli(ms) }

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

var defaults = Thresholds{Drowsy: 0.15, LikelyDrowsy: 0.08}

func entry(closedAt, d int64) window.Entry {
	return window.Entry{ClosedAt: at(closedAt), Duration: ms(d), Final: true}
}

func TestCalculate(t *testing.T) {
	cases := []struct {
		name    string
		entries []window.Entry
		now     int64
		length  int64
		want    float64
	}{
		{"empty", nil, 2000, 2000, 0},
		{"two slow closures", []window.Entry{entry(100, 600), entry(1000, 550)}, 2000, 2000, 0.575},
		{"closed whole window", []window.Entry{entry(0, 2000)}, 2000, 2000, 1},
		{"clipped at window start", []window.Entry{entry(0, 1000)}, 2500, 2000, 0.25},
		{"clipped at now", []window.Entry{entry(1500, 2000)}, 2000, 2000, 0.25},
		{"overlapping input is clamped", []window.Entry{entry(0, 2000), entry(0, 2000)}, 2000, 2000, 1},
		{"zero length window", []window.Entry{entry(0, 10)}, 10, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Calculate(tc.entries, at(tc.now), ms(tc.length))
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCalculateBounds(t *testing.T) {
	for now := int64(0); now <= 6000; now += 137 {
		var entries []window.Entry
		for i := int64(0); i < 12; i++ {
			entries = append(entries, entry(i*400, 300+i*50))
		}
		p := Calculate(entries, at(now), ms(2000))
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("perclos %v out of bounds at %d", p, now)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	cases := []struct {
		name string
		th   Thresholds
		ok   bool
	}{
		{"defaults", defaults, true},
		{"equal", Thresholds{Drowsy: 0.1, LikelyDrowsy: 0.1}, true},
		{"likely above drowsy", Thresholds{Drowsy: 0.1, LikelyDrowsy: 0.2}, false},
		{"negative", Thresholds{Drowsy: 0.1, LikelyDrowsy: -0.1}, false},
		{"above one", Thresholds{Drowsy: 1.5, LikelyDrowsy: 0.1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.th.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidThresholds), "got %v", err)
		})
	}
}

func TestLevelBoundaries(t *testing.T) {
	assert.Equal(t, event.KindDrowsy, defaults.Level(0.15))
	assert.Equal(t, event.KindLikelyDrowsy, defaults.Level(0.1499))
	assert.Equal(t, event.KindLikelyDrowsy, defaults.Level(0.08))
	assert.Equal(t, event.KindAwake, defaults.Level(0.0799))
	assert.Equal(t, event.KindAwake, defaults.Level(0))
}

func newClassifier(t *testing.T, entries ...window.Entry) (*Classifier, *event.Recorder) {
	t.Helper()
	bus := event.NewBus()
	store := window.NewStore()
	for _, e := range entries {
		store.Record(e.ClosedAt, e.Duration, e.Final)
	}
	rec := event.NewRecorder()
	require.NoError(t, bus.Register(rec))
	return NewClassifier(defaults, 2*time.Second, store, bus), rec
}

func TestClassifierScenarios(t *testing.T) {
	cases := []struct {
		name    string
		entries []window.Entry
		now     int64
		want    event.Event
	}{
		{"awake with empty window", nil, 2000, event.AwakeEvent{At: at(2000), PERCLOS: 0}},
		{"drowsy", []window.Entry{entry(100, 600), entry(1000, 550)}, 2000,
			event.DrowsyEvent{At: at(2000), PERCLOS: 0.575}},
		{"likely drowsy", []window.Entry{entry(100, 150), entry(1000, 55)}, 2000,
			event.LikelyDrowsyEvent{At: at(2000), PERCLOS: 0.1025}},
		{"closures left the window", []window.Entry{entry(100, 150), entry(1000, 55)}, 5000,
			event.AwakeEvent{At: at(5000), PERCLOS: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newClassifier(t, tc.entries...)
			p, err := c.MaybeProduceDrowsyEvent(at(tc.now))
			require.NoError(t, err)
			require.Len(t, rec.Events(), 1)

			got, ok := rec.Last().(event.Drowsiness)
			require.True(t, ok)
			want := tc.want.(event.Drowsiness)
			assert.Equal(t, want.Level(), got.Level())
			assert.Equal(t, want.Time(), got.Time())
			assert.InDelta(t, want.Value(), got.Value(), 1e-9)
			assert.InDelta(t, want.Value(), p, 1e-9)
		})
	}
}

func TestClassifierReturnsValueOnHandlerError(t *testing.T) {
	c, _ := newClassifier(t, entry(0, 2000))
	boom := errors.New("boom")
	require.NoError(t, c.bus.Register(event.SubscriberFunc(func(event.Event) error { return boom })))

	p, err := c.MaybeProduceDrowsyEvent(at(2000))
	assert.Equal(t, 1.0, p)
	var he *event.HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, event.KindDrowsy, he.Kind)
	assert.ErrorIs(t, err, boom)
}
