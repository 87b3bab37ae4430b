// Package clockalign maps host clock readings onto the frame-time axis.
package clockalign

import "time"

// Clock supplies the host time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Aligner fixes the offset between the host clock and frame timestamps at the moment
// the first frame is seen. The offset never changes afterwards.
type Aligner struct {
	delta time.Duration
}

// New captures delta = externalNow - firstFrame.
func New(externalNow, firstFrame time.Time) Aligner {
	return Aligner{delta: externalNow.Sub(firstFrame)}
}

// ToFrameTime converts a host clock reading to frame time.
func (a Aligner) ToFrameTime(externalNow time.Time) time.Time {
	return externalNow.Add(-a.delta)
}

// Delta is how far the host clock runs ahead of frame time.
func (a Aligner) Delta() time.Duration { return a.delta }
