package face

import (
	"errors"
	"time"
)

// Frame is the JSON wire form of a FrameSample used by the HTTP API and replay files.
// A missing or null probability means the detector did not compute it.
type Frame struct {
	TimestampMS int64          `json:"timestamp_ms"`
	Left        *float64       `json:"left_eye_open_probability"`
	Right       *float64       `json:"right_eye_open_probability"`
	Landmarks   []LandmarkKind `json:"landmarks"`
}

var ErrNegativeTimestamp = errors.New("face: negative frame timestamp")

// Sample converts the wire frame into a FrameSample in the frame-time domain.
func (f Frame) Sample() (FrameSample, error) {
	if f.TimestampMS < 0 {
		return FrameSample{}, ErrNegativeTimestamp
	}
	s := FrameSample{
		Timestamp:               time.UnixMilli(f.TimestampMS),
		LeftEyeOpenProbability:  UncomputedProbability,
		RightEyeOpenProbability: UncomputedProbability,
		Landmarks:               f.Landmarks,
	}
	if f.Left != nil {
		s.LeftEyeOpenProbability = *f.Left
	}
	if f.Right != nil {
		s.RightEyeOpenProbability = *f.Right
	}
	return s, nil
}

// FrameOf is the inverse of Frame.Sample.
func FrameOf(s FrameSample) Frame {
	f := Frame{TimestampMS: s.Timestamp.UnixMilli(), Landmarks: s.Landmarks}
	if Computed(s.LeftEyeOpenProbability) {
		l := s.LeftEyeOpenProbability
		f.Left = &l
	}
	if Computed(s.RightEyeOpenProbability) {
		r := s.RightEyeOpenProbability
		f.Right = &r
	}
	return f
}
