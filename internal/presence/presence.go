// Package presence turns face detected/lost signals into AppActive and AppIdle edges.
package presence

import (
	"time"

	"github.com/loykin/drowsy/internal/event"
)

type State int

const (
	StateUnknown State = iota
	StateActive
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Tracker emits an event only when the presence state changes.
type Tracker struct {
	bus   *event.Bus
	state State
}

func NewTracker(bus *event.Bus) *Tracker {
	return &Tracker{bus: bus}
}

func (t *Tracker) State() State { return t.state }

// FaceDetected handles both a new face and an update of a tracked face.
func (t *Tracker) FaceDetected(at time.Time) error {
	if t.state == StateActive {
		return nil
	}
	t.state = StateActive
	return t.bus.Publish(event.AppActiveEvent{At: at})
}

// FaceLost handles both a missing face and the end of tracking.
func (t *Tracker) FaceLost(at time.Time) error {
	if t.state == StateIdle {
		return nil
	}
	t.state = StateIdle
	return t.bus.Publish(event.AppIdleEvent{At: at})
}
