package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/drowsy/internal/event"
)

func newTracker(t *testing.T) (*Tracker, *event.Recorder) {
	t.Helper()
	bus := event.NewBus()
	rec := event.NewRecorder()
	require.NoError(t, bus.Register(rec))
	return NewTracker(bus), rec
}

func TestTransitions(t *testing.T) {
	tr, rec := newTracker(t)
	assert.Equal(t, StateUnknown, tr.State())

	require.NoError(t, tr.FaceDetected(time.UnixMilli(1)))
	require.NoError(t, tr.FaceDetected(time.UnixMilli(2)))
	require.NoError(t, tr.FaceLost(time.UnixMilli(3)))
	require.NoError(t, tr.FaceLost(time.UnixMilli(4)))
	require.NoError(t, tr.FaceDetected(time.UnixMilli(5)))

	assert.Equal(t, []event.Event{
		event.AppActiveEvent{At: time.UnixMilli(1)},
		event.AppIdleEvent{At: time.UnixMilli(3)},
		event.AppActiveEvent{At: time.UnixMilli(5)},
	}, rec.Events())
	assert.Equal(t, StateActive, tr.State())
}

func TestLostFromUnknown(t *testing.T) {
	tr, rec := newTracker(t)
	require.NoError(t, tr.FaceLost(time.UnixMilli(7)))
	assert.Equal(t, []event.Event{event.AppIdleEvent{At: time.UnixMilli(7)}}, rec.Events())
	assert.Equal(t, "idle", tr.State().String())
}
