// Package face holds the per-frame measurements produced by the external face
// detector and the eye-openness predicates shared by every classifier.
package face

import (
	"math"
	"slices"
	"time"
)

// UncomputedProbability marks an eye-open probability the detector could not compute.
// Any value outside [0,1] is treated the same way.
const UncomputedProbability = -1.0

// LandmarkKind identifies a facial landmark reported by the detector.
type LandmarkKind string

const (
	LeftEye     LandmarkKind = "left_eye"
	RightEye    LandmarkKind = "right_eye"
	NoseBase    LandmarkKind = "nose_base"
	LeftMouth   LandmarkKind = "left_mouth"
	RightMouth  LandmarkKind = "right_mouth"
	BottomMouth LandmarkKind = "bottom_mouth"
	LeftCheek   LandmarkKind = "left_cheek"
	RightCheek  LandmarkKind = "right_cheek"
	LeftEar     LandmarkKind = "left_ear"
	RightEar    LandmarkKind = "right_ear"
)

// FrameSample is one detector observation. It is treated as immutable once built.
type FrameSample struct {
	Timestamp               time.Time      `json:"timestamp"`
	LeftEyeOpenProbability  float64        `json:"left_eye_open_probability"`
	RightEyeOpenProbability float64        `json:"right_eye_open_probability"`
	Landmarks               []LandmarkKind `json:"landmarks"`
}

// NewSample builds a sample with both eye landmarks present.
func NewSample(ts time.Time, left, right float64) FrameSample {
	return FrameSample{
		Timestamp:               ts,
		LeftEyeOpenProbability:  left,
		RightEyeOpenProbability: right,
		Landmarks:               []LandmarkKind{LeftEye, RightEye},
	}
}

// HasLandmark reports whether the detector reported the given landmark.
func (s FrameSample) HasLandmark(k LandmarkKind) bool {
	return slices.Contains(s.Landmarks, k)
}

// HasBothEyes reports whether both eye landmarks were detected.
func (s FrameSample) HasBothEyes() bool {
	return s.HasLandmark(LeftEye) && s.HasLandmark(RightEye)
}

// Computed reports whether p is a usable probability.
func Computed(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// BothEyesOpen is true when both probabilities are computed and at or above threshold.
func (s FrameSample) BothEyesOpen(threshold float64) bool {
	if !Computed(s.LeftEyeOpenProbability) || !Computed(s.RightEyeOpenProbability) {
		return false
	}
	return s.LeftEyeOpenProbability >= threshold && s.RightEyeOpenProbability >= threshold
}

// BothEyesClosed is true when both probabilities are computed and below threshold.
func (s FrameSample) BothEyesClosed(threshold float64) bool {
	if !Computed(s.LeftEyeOpenProbability) || !Computed(s.RightEyeOpenProbability) {
		return false
	}
	return s.LeftEyeOpenProbability < threshold && s.RightEyeOpenProbability < threshold
}

// Indefinite is true for frames that are neither "both open" nor "both closed".
func (s FrameSample) Indefinite(threshold float64) bool {
	return !s.BothEyesOpen(threshold) && !s.BothEyesClosed(threshold)
}
