// Package window keeps the slow eyelid closures that still overlap the rolling
// PERCLOS window.
package window

import (
	"slices"
	"time"

	"github.com/loykin/drowsy/internal/event"
)

// Entry is one slow closure, completed (Final) or still in progress.
type Entry struct {
	ClosedAt time.Time     `json:"closed_at"`
	Duration time.Duration `json:"duration"`
	Final    bool          `json:"final"`
}

// End is the instant the closure ended, or the latest observed instant while pending.
func (e Entry) End() time.Time { return e.ClosedAt.Add(e.Duration) }

// Store holds at most one entry per ClosedAt, ordered by ClosedAt.
//
// Pending updates never shorten an entry and never touch a completed one; the
// completed event replaces whatever pending duration was stored before it.
type Store struct {
	entries []Entry
}

func NewStore() *Store { return &Store{} }

func (s *Store) Subscriptions() []event.Subscription {
	return []event.Subscription{
		{Kind: event.KindSlowEyelidClosure, Handle: s.onClosure},
		{Kind: event.KindPendingSlowEyelidClosure, Handle: s.onClosure},
	}
}

func (s *Store) onClosure(e event.Event) error {
	c, ok := e.(event.Closure)
	if !ok {
		return nil
	}
	closedAt, d := c.Closure()
	_, final := e.(event.SlowEyelidClosureEvent)
	s.Record(closedAt, d, final)
	return nil
}

// Record inserts or updates the entry for closedAt.
func (s *Store) Record(closedAt time.Time, d time.Duration, final bool) {
	i, found := slices.BinarySearchFunc(s.entries, closedAt, func(e Entry, t time.Time) int {
		return e.ClosedAt.Compare(t)
	})
	if !found {
		s.entries = slices.Insert(s.entries, i, Entry{ClosedAt: closedAt, Duration: d, Final: final})
		return
	}
	cur := &s.entries[i]
	switch {
	case cur.Final:
		// frozen
	case final:
		cur.Duration = d
		cur.Final = true
	case d > cur.Duration:
		cur.Duration = d
	}
}

// EntriesOverlapping prunes every entry that ended before now-length and returns the
// entries intersecting [now-length, now], ascending by ClosedAt. Entries are not clipped.
func (s *Store) EntriesOverlapping(now time.Time, length time.Duration) []Entry {
	start := now.Add(-length)
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool {
		return e.End().Before(start)
	})
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.ClosedAt.After(now) {
			break
		}
		out = append(out, e)
	}
	return out
}

// snapshot copies the stored entries as left by the last EntriesOverlapping call.
func (s *Store) snapshot() []Entry { return slices.Clone(s.entries) }

func (s *Store) Len() int { return len(s.entries) }
