package client

import (
	"encoding/json"
	"time"
)

// Frame is one detector observation. A nil probability means it was not computed.
type Frame struct {
	TimestampMS int64    `json:"timestamp_ms"`
	Left        *float64 `json:"left_eye_open_probability"`
	Right       *float64 `json:"right_eye_open_probability"`
	Landmarks   []string `json:"landmarks"`
}

// NewFrame builds a frame with both eye landmarks and both probabilities set.
func NewFrame(ts time.Time, left, right float64) Frame {
	return Frame{
		TimestampMS: ts.UnixMilli(),
		Left:        &left,
		Right:       &right,
		Landmarks:   []string{"left_eye", "right_eye"},
	}
}

// Event is a published detector event as streamed by the daemon.
type Event struct {
	Kind string          `json:"kind"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// FramesResponse reports how many frames were accepted and the events they produced.
type FramesResponse struct {
	Accepted int     `json:"accepted"`
	Events   []Event `json:"events"`
	Error    string  `json:"error,omitempty"`
}

// Status mirrors the daemon's session snapshot.
type Status struct {
	ID              string     `json:"id"`
	State           string     `json:"state,omitempty"`
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

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
