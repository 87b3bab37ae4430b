// Package history exports drowsiness state changes, slow closures and presence
// changes to external analytics stores.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of history event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventSlowClosure EventType = "slow_closure"
	EventPresence    EventType = "presence"
)

// Record is the payload of a history event. Fields that do not apply to the event
// type are left zero.
type Record struct {
	SessionID  string    `json:"session_id"`
	State      string    `json:"state,omitempty"`
	Previous   string    `json:"previous,omitempty"`
	PERCLOS    float64   `json:"perclos"`
	ClosedAt   time.Time `json:"closed_at,omitzero"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// Event represents a detector event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// NullableClosedAt returns ClosedAt or nil when unset, for nullable columns.
func (r Record) NullableClosedAt() any {
	if r.ClosedAt.IsZero() {
		return nil
	}
	return r.ClosedAt.UTC()
}
