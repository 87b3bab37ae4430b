// Package perclos computes the PERCLOS metric over the sliding window and turns it
// into a drowsiness classification.
package perclos

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/window"
)

var ErrInvalidThresholds = errors.New("invalid drowsiness thresholds")

// Calculate returns the fraction of [now-length, now] covered by entries. Each entry is
// clipped to the window first. The result is always within [0,1].
func Calculate(entries []window.Entry, now time.Time, length time.Duration) float64 {
	if length <= 0 || len(entries) == 0 {
		return 0
	}
	start := now.Add(-length)
	var closed time.Duration
	for _, e := range entries {
		from, to := e.ClosedAt, e.End()
		if from.Before(start) {
			from = start
		}
		if to.After(now) {
			to = now
		}
		if to.After(from) {
			closed += to.Sub(from)
		}
	}
	p := float64(closed) / float64(length)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Thresholds are inclusive lower bounds: a value equal to Drowsy is drowsy.
type Thresholds struct {
	Drowsy       float64 `json:"drowsy"`
	LikelyDrowsy float64 `json:"likely_drowsy"`
}

func (t Thresholds) Validate() error {
	if t.Drowsy < 0 || t.Drowsy > 1 {
		return fmt.Errorf("%w: drowsy threshold %v outside [0,1]", ErrInvalidThresholds, t.Drowsy)
	}
	if t.LikelyDrowsy < 0 || t.LikelyDrowsy > 1 {
		return fmt.Errorf("%w: likely drowsy threshold %v outside [0,1]", ErrInvalidThresholds, t.LikelyDrowsy)
	}
	if t.LikelyDrowsy > t.Drowsy {
		return fmt.Errorf("%w: likely drowsy threshold %v above drowsy threshold %v",
			ErrInvalidThresholds, t.LikelyDrowsy, t.Drowsy)
	}
	return nil
}

// Level maps a PERCLOS value onto the event kind it produces.
func (t Thresholds) Level(p float64) event.Kind {
	switch {
	case p >= t.Drowsy:
		return event.KindDrowsy
	case p >= t.LikelyDrowsy:
		return event.KindLikelyDrowsy
	default:
		return event.KindAwake
	}
}

// Classifier publishes one drowsiness event per query.
type Classifier struct {
	thresholds Thresholds
	length     time.Duration
	store      *window.Store
	bus        *event.Bus
}

func NewClassifier(t Thresholds, length time.Duration, store *window.Store, bus *event.Bus) *Classifier {
	return &Classifier{thresholds: t, length: length, store: store, bus: bus}
}

// MaybeProduceDrowsyEvent computes PERCLOS at now (frame time) and publishes exactly one
// of DrowsyEvent, LikelyDrowsyEvent or AwakeEvent. The computed value is returned even
// when a subscriber fails.
func (c *Classifier) MaybeProduceDrowsyEvent(now time.Time) (float64, error) {
	p := Calculate(c.store.EntriesOverlapping(now, c.length), now, c.length)
	return p, c.bus.Publish(NewEvent(c.thresholds.Level(p), now, p))
}

// NewEvent builds the classification event for level.
func NewEvent(level event.Kind, at time.Time, p float64) event.Drowsiness {
	switch level {
	case event.KindDrowsy:
		return event.DrowsyEvent{At: at, PERCLOS: p}
	case event.KindLikelyDrowsy:
		return event.LikelyDrowsyEvent{At: at, PERCLOS: p}
	default:
		return event.AwakeEvent{At: at, PERCLOS: p}
	}
}
