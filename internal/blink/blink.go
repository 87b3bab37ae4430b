// Package blink classifies eyelid closures by duration and reports closures that
// are still in progress.
package blink

import (
	"time"

	"github.com/loykin/drowsy/internal/event"
)

// IsSlow reports whether a closure of duration d counts as a slow eyelid closure.
// The boundary value is slow.
func IsSlow(d, minSlow time.Duration) bool {
	return d >= minSlow
}

// DurationClassifier pairs each EyesClosed with the following EyesOpened and emits
// either a NormalEyeBlinkEvent or a SlowEyelidClosureEvent for the interval.
type DurationClassifier struct {
	minSlow time.Duration
	bus     *event.Bus

	closedAt    time.Time
	hasClosedAt bool
}

func NewDurationClassifier(minSlow time.Duration, bus *event.Bus) *DurationClassifier {
	return &DurationClassifier{minSlow: minSlow, bus: bus}
}

func (c *DurationClassifier) Subscriptions() []event.Subscription {
	return []event.Subscription{
		{Kind: event.KindEyesClosed, Handle: c.onClosed},
		{Kind: event.KindEyesOpened, Handle: c.onOpened},
	}
}

func (c *DurationClassifier) onClosed(e event.Event) error {
	c.closedAt = e.Time()
	c.hasClosedAt = true
	return nil
}

func (c *DurationClassifier) onOpened(e event.Event) error {
	if !c.hasClosedAt {
		// opened without a recorded close: first edge of the session
		return nil
	}
	closedAt := c.closedAt
	d := e.Time().Sub(closedAt)
	c.hasClosedAt = false
	c.closedAt = time.Time{}
	if IsSlow(d, c.minSlow) {
		return c.bus.Publish(event.SlowEyelidClosureEvent{ClosedAt: closedAt, Duration: d})
	}
	return c.bus.Publish(event.NormalEyeBlinkEvent{ClosedAt: closedAt, Duration: d})
}
