package blink

import (
	"time"

	"github.com/loykin/drowsy/internal/event"
)

// PendingClosureTracker emits a PendingSlowEyelidClosureEvent on every frame of an
// ongoing closure once it has lasted at least minSlow.
type PendingClosureTracker struct {
	threshold float64
	minSlow   time.Duration
	bus       *event.Bus

	closedSince time.Time
	closed      bool
}

func NewPendingClosureTracker(threshold float64, minSlow time.Duration, bus *event.Bus) *PendingClosureTracker {
	return &PendingClosureTracker{threshold: threshold, minSlow: minSlow, bus: bus}
}

func (p *PendingClosureTracker) Subscriptions() []event.Subscription {
	return []event.Subscription{
		{Kind: event.KindEyesClosed, Handle: p.onClosed},
		{Kind: event.KindEyesOpened, Handle: p.onOpened},
		{Kind: event.KindUpdate, Handle: p.onUpdate},
	}
}

// ClosedSince returns the start of the ongoing closure, if any.
func (p *PendingClosureTracker) ClosedSince() (time.Time, bool) {
	return p.closedSince, p.closed
}

func (p *PendingClosureTracker) onClosed(e event.Event) error {
	p.closedSince = e.Time()
	p.closed = true
	return nil
}

func (p *PendingClosureTracker) onOpened(event.Event) error {
	p.closedSince = time.Time{}
	p.closed = false
	return nil
}

func (p *PendingClosureTracker) onUpdate(e event.Event) error {
	if !p.closed {
		return nil
	}
	u, ok := e.(event.UpdateEvent)
	if !ok || !u.Sample.BothEyesClosed(p.threshold) {
		return nil
	}
	d := u.Sample.Timestamp.Sub(p.closedSince)
	if !IsSlow(d, p.minSlow) {
		return nil
	}
	return p.bus.Publish(event.PendingSlowEyelidClosureEvent{ClosedAt: p.closedSince, Duration: d})
}
