package session

import (
	"log/slog"
	"time"

	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/eyes"
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID              string     `json:"id"`
	State           event.Kind `json:"state,omitempty"`
	PERCLOS         float64    `json:"perclos"`
	ClassifiedAt    time.Time  `json:"classified_at"`
	Eyes            string     `json:"eyes"`
	Presence        string     `json:"presence"`
	ClosedSince     *time.Time `json:"closed_since,omitempty"`
	ClockOffsetMS   int64      `json:"clock_offset_ms"`
	WindowEntries   int        `json:"window_entries"`
	FramesProcessed uint64     `json:"frames_processed"`
	FramesDropped   uint64     `json:"frames_dropped"`
	FramesStale     uint64     `json:"frames_stale"`
	LastFrameAt     time.Time  `json:"last_frame_at"`
	Failed          bool       `json:"failed"`
	Error           string     `json:"error,omitempty"`
	Closed          bool       `json:"closed"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:              s.id,
		State:           s.tracker.level,
		PERCLOS:         s.tracker.perclos,
		ClassifiedAt:    s.tracker.classifiedAt,
		Eyes:            s.tracker.eyes.String(),
		Presence:        s.presence.State().String(),
		WindowEntries:   s.store.Len(),
		FramesProcessed: s.processed,
		FramesDropped:   s.dropped,
		FramesStale:     s.stale,
		LastFrameAt:     s.lastFrame,
		Failed:          s.failed != nil,
		Closed:          s.isClosed,
	}
	if s.aligned {
		st.ClockOffsetMS = s.aligner.Delta().Milliseconds()
	}
	if since, ok := s.pending.ClosedSince(); ok {
		st.ClosedSince = &since
	}
	if s.failed != nil {
		st.Error = s.failed.Error()
	}
	return st
}

// tracker is the session's own catch-all subscriber. It is registered first so
// captured events appear in publish order.
type tracker struct {
	log *slog.Logger

	level        event.Kind
	perclos      float64
	classifiedAt time.Time
	eyes         eyes.State

	capturing bool
	buf       []event.Event
}

func newTracker(log *slog.Logger) *tracker { return &tracker{log: log} }

func (t *tracker) Subscriptions() []event.Subscription {
	return []event.Subscription{{Kind: event.KindAny, Handle: t.handle}}
}

func (t *tracker) handle(e event.Event) error {
	if t.capturing {
		t.buf = append(t.buf, e)
	}
	switch ev := e.(type) {
	case event.EyesOpenedEvent:
		t.eyes = eyes.Open
	case event.EyesClosedEvent:
		t.eyes = eyes.Closed
	case event.Drowsiness:
		if ev.Level() != t.level {
			t.log.Info("drowsiness state changed",
				"from", string(t.level), "to", string(ev.Level()), "perclos", ev.Value())
		}
		t.level = ev.Level()
		t.perclos = ev.Value()
		t.classifiedAt = ev.Time()
	}
	return nil
}

func (t *tracker) startCapture() {
	t.capturing = true
	t.buf = nil
}

func (t *tracker) stopCapture() {
	t.capturing = false
	t.buf = nil
}

func (t *tracker) captured() []event.Event { return t.buf }
