// Package event defines the drowsiness event taxonomy and the synchronous bus that
// carries it between producers.
//
// All timestamps are in the frame-time domain unless noted otherwise.
package event

import (
	"time"

	"github.com/loykin/drowsy/internal/face"
)

// Kind is the dispatch tag of an event.
type Kind string

const (
	KindAny                      Kind = "*"
	KindUpdate                   Kind = "update"
	KindEyesOpened               Kind = "eyes_opened"
	KindEyesClosed               Kind = "eyes_closed"
	KindNormalEyeBlink           Kind = "normal_eye_blink"
	KindSlowEyelidClosure        Kind = "slow_eyelid_closure"
	KindPendingSlowEyelidClosure Kind = "pending_slow_eyelid_closure"
	KindAwake                    Kind = "awake"
	KindLikelyDrowsy             Kind = "likely_drowsy"
	KindDrowsy                   Kind = "drowsy"
	KindAppActive                Kind = "app_active"
	KindAppIdle                  Kind = "app_idle"
)

// Event is implemented by every value published on the bus.
type Event interface {
	Kind() Kind
	Time() time.Time
}

// UpdateEvent is the raw per-frame tick that drives the cascade.
type UpdateEvent struct {
	Sample face.FrameSample `json:"sample"`
}

func (e UpdateEvent) Kind() Kind      { return KindUpdate }
func (e UpdateEvent) Time() time.Time { return e.Sample.Timestamp }

type EyesOpenedEvent struct {
	At time.Time `json:"at"`
}

func (e EyesOpenedEvent) Kind() Kind      { return KindEyesOpened }
func (e EyesOpenedEvent) Time() time.Time { return e.At }

type EyesClosedEvent struct {
	At time.Time `json:"at"`
}

func (e EyesClosedEvent) Kind() Kind      { return KindEyesClosed }
func (e EyesClosedEvent) Time() time.Time { return e.At }

// NormalEyeBlinkEvent is a completed closure shorter than the slow-closure minimum.
type NormalEyeBlinkEvent struct {
	ClosedAt time.Time     `json:"closed_at"`
	Duration time.Duration `json:"duration"`
}

func (e NormalEyeBlinkEvent) Kind() Kind      { return KindNormalEyeBlink }
func (e NormalEyeBlinkEvent) Time() time.Time { return e.ClosedAt }

// SlowEyelidClosureEvent is a completed closure at least as long as the slow-closure minimum.
type SlowEyelidClosureEvent struct {
	ClosedAt time.Time     `json:"closed_at"`
	Duration time.Duration `json:"duration"`
}

func (e SlowEyelidClosureEvent) Kind() Kind      { return KindSlowEyelidClosure }
func (e SlowEyelidClosureEvent) Time() time.Time { return e.ClosedAt }

// PendingSlowEyelidClosureEvent reports a closure that already qualifies as slow but has
// not ended yet. Each one supersedes the previous one with the same ClosedAt.
type PendingSlowEyelidClosureEvent struct {
	ClosedAt time.Time     `json:"closed_at"`
	Duration time.Duration `json:"duration"`
}

func (e PendingSlowEyelidClosureEvent) Kind() Kind      { return KindPendingSlowEyelidClosure }
func (e PendingSlowEyelidClosureEvent) Time() time.Time { return e.ClosedAt }

type AwakeEvent struct {
	At      time.Time `json:"at"`
	PERCLOS float64   `json:"perclos"`
}

func (e AwakeEvent) Kind() Kind      { return KindAwake }
func (e AwakeEvent) Time() time.Time { return e.At }

type LikelyDrowsyEvent struct {
	At      time.Time `json:"at"`
	PERCLOS float64   `json:"perclos"`
}

func (e LikelyDrowsyEvent) Kind() Kind      { return KindLikelyDrowsy }
func (e LikelyDrowsyEvent) Time() time.Time { return e.At }

type DrowsyEvent struct {
	At      time.Time `json:"at"`
	PERCLOS float64   `json:"perclos"`
}

func (e DrowsyEvent) Kind() Kind      { return KindDrowsy }
func (e DrowsyEvent) Time() time.Time { return e.At }

// AppActiveEvent and AppIdleEvent are stamped with the host clock, not frame time.
type AppActiveEvent struct {
	At time.Time `json:"at"`
}

func (e AppActiveEvent) Kind() Kind      { return KindAppActive }
func (e AppActiveEvent) Time() time.Time { return e.At }

type AppIdleEvent struct {
	At time.Time `json:"at"`
}

func (e AppIdleEvent) Kind() Kind      { return KindAppIdle }
func (e AppIdleEvent) Time() time.Time { return e.At }

// Closure is the (closedAt, duration) pair shared by completed and pending slow closures.
type Closure interface {
	Event
	Closure() (time.Time, time.Duration)
}

func (e SlowEyelidClosureEvent) Closure() (time.Time, time.Duration) {
	return e.ClosedAt, e.Duration
}

func (e PendingSlowEyelidClosureEvent) Closure() (time.Time, time.Duration) {
	return e.ClosedAt, e.Duration
}

// Drowsiness is implemented by the three classification events.
type Drowsiness interface {
	Event
	Level() Kind
	Value() float64
}

func (e AwakeEvent) Level() Kind           { return KindAwake }
func (e AwakeEvent) Value() float64        { return e.PERCLOS }
func (e LikelyDrowsyEvent) Level() Kind    { return KindLikelyDrowsy }
func (e LikelyDrowsyEvent) Value() float64 { return e.PERCLOS }
func (e DrowsyEvent) Level() Kind          { return KindDrowsy }
func (e DrowsyEvent) Value() float64       { return e.PERCLOS }
