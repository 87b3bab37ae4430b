// Package eyes turns per-frame open probabilities into edge-triggered
// EyesOpened / EyesClosed events.
package eyes

import (
	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/face"
)

// State is the last determinate eye state seen by a producer.
type State int

const (
	Unknown State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Producer holds one State and emits a single edge kind. The opened and closed
// producers share the code and differ only in the predicate they test.
type Producer struct {
	threshold float64
	bus       *event.Bus
	state     State
	target    State
	matches   func(face.FrameSample, float64) bool
	emit      func(face.FrameSample) event.Event
}

// NewOpenedProducer emits EyesOpenedEvent on the first "both open" frame after any
// other determinate state.
func NewOpenedProducer(threshold float64, bus *event.Bus) *Producer {
	return &Producer{
		threshold: threshold,
		bus:       bus,
		target:    Open,
		matches:   face.FrameSample.BothEyesOpen,
		emit:      func(s face.FrameSample) event.Event { return event.EyesOpenedEvent{At: s.Timestamp} },
	}
}

// NewClosedProducer emits EyesClosedEvent on the first "both closed" frame after any
// other determinate state.
func NewClosedProducer(threshold float64, bus *event.Bus) *Producer {
	return &Producer{
		threshold: threshold,
		bus:       bus,
		target:    Closed,
		matches:   face.FrameSample.BothEyesClosed,
		emit:      func(s face.FrameSample) event.Event { return event.EyesClosedEvent{At: s.Timestamp} },
	}
}

func (p *Producer) Subscriptions() []event.Subscription {
	return []event.Subscription{{Kind: event.KindUpdate, Handle: p.onUpdate}}
}

// State returns the producer's current view of the eyes.
func (p *Producer) State() State { return p.state }

func (p *Producer) onUpdate(e event.Event) error {
	u, ok := e.(event.UpdateEvent)
	if !ok {
		return nil
	}
	if u.Sample.Indefinite(p.threshold) {
		return nil
	}
	if !p.matches(u.Sample, p.threshold) {
		// Opposite frames only move the state; the mirrored producer emits that edge.
		p.state = p.other()
		return nil
	}
	if p.state == p.target {
		return nil
	}
	p.state = p.target
	return p.bus.Publish(p.emit(u.Sample))
}

func (p *Producer) other() State {
	if p.target == Open {
		return Closed
	}
	return Open
}
