// Package drowsy detects operator drowsiness from per-frame eye-openness
// probabilities using the PERCLOS measure.
package drowsy

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/drowsy/internal/clockalign"
	cfg "github.com/loykin/drowsy/internal/config"
	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/face"
	"github.com/loykin/drowsy/internal/history"
	"github.com/loykin/drowsy/internal/history/factory"
	"github.com/loykin/drowsy/internal/metrics"
	iapi "github.com/loykin/drowsy/internal/server"
	"github.com/loykin/drowsy/internal/session"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type DetectorConfig = cfg.Detector

type Session = session.Session

type SessionOption = session.Option

type Status = session.Status

type FrameSample = face.FrameSample

// Frame is the JSON wire form of a FrameSample.
type Frame = face.Frame

type LandmarkKind = face.LandmarkKind

const (
	LeftEye  = face.LeftEye
	RightEye = face.RightEye
)

type Clock = clockalign.Clock

type ClockFunc = clockalign.ClockFunc

// Event types

type Event = event.Event

type EventKind = event.Kind

type Subscriber = event.Subscriber

type Subscription = event.Subscription

type SubscriberFunc = event.SubscriberFunc

type HandlerError = event.HandlerError

// EventEnvelope is the JSON wire form of an event.
type EventEnvelope = event.Envelope

func Wrap(e Event) EventEnvelope { return event.Wrap(e) }

type (
	AwakeEvent                    = event.AwakeEvent
	LikelyDrowsyEvent             = event.LikelyDrowsyEvent
	DrowsyEvent                   = event.DrowsyEvent
	NormalEyeBlinkEvent           = event.NormalEyeBlinkEvent
	SlowEyelidClosureEvent        = event.SlowEyelidClosureEvent
	PendingSlowEyelidClosureEvent = event.PendingSlowEyelidClosureEvent
	AppActiveEvent                = event.AppActiveEvent
	AppIdleEvent                  = event.AppIdleEvent
)

const (
	KindAny          = event.KindAny
	KindAwake        = event.KindAwake
	KindLikelyDrowsy = event.KindLikelyDrowsy
	KindDrowsy       = event.KindDrowsy
)

var (
	ErrStaleFrame    = session.ErrStaleFrame
	ErrSessionFailed = session.ErrSessionFailed
	ErrSessionClosed = session.ErrSessionClosed
	ErrInvalidConfig = cfg.ErrInvalidConfig
)

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func DefaultConfig() *Config { return cfg.Default() }

func DefaultDetectorConfig() DetectorConfig { return cfg.DefaultDetector() }

// NewSample builds a frame sample with both eye landmarks present.
func NewSample(ts time.Time, left, right float64) FrameSample { return face.NewSample(ts, left, right) }

// NewSession validates c and returns a ready session.
func NewSession(c DetectorConfig, opts ...SessionOption) (*Session, error) {
	return session.New(c, opts...)
}

func WithClock(c Clock) SessionOption               { return session.WithClock(c) }
func WithLogger(l *slog.Logger) SessionOption       { return session.WithLogger(l) }
func WithSessionID(id string) SessionOption         { return session.WithID(id) }
func WithMetrics() SessionOption                    { return session.WithMetrics() }
func WithEventLogging() SessionOption               { return session.WithEventLogging() }
func WithSubscribers(s ...Subscriber) SessionOption { return session.WithSubscribers(s...) }

// NewLogger builds the slog logger described by the [log] section of c.
func NewLogger(c *Config) *slog.Logger { return c.Log.Logger().NewSlogger() }

// HTTP facade

type EventHub = iapi.Hub

type HTTPOption = iapi.Option

func NewEventHub(l *slog.Logger) *EventHub { return iapi.NewHub(l) }

func WithEventStream(h *EventHub) HTTPOption { return iapi.WithHub(h) }

func WithMetricsEndpoint() HTTPOption { return iapi.WithMetrics() }

// NewHTTPHandler returns the API for s mounted under basePath.
func NewHTTPHandler(s *Session, basePath string, opts ...HTTPOption) http.Handler {
	return iapi.NewRouter(s, basePath, opts...).Handler()
}

// NewHTTPServer starts an HTTP server exposing the API for s.
func NewHTTPServer(addr, basePath string, s *Session, opts ...HTTPOption) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s, opts...)
}

// History facade

type HistorySink = history.Sink

type HistoryRecorder = history.Recorder

type HistoryRecorderOptions = history.RecorderOptions

// NewHistorySink picks a sink implementation from the DSN scheme.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHistoryRecorder returns a subscriber that persists drowsiness transitions to sink.
func NewHistoryRecorder(sessionID string, sink HistorySink, opts HistoryRecorderOptions) *HistoryRecorder {
	return history.NewRecorder(sessionID, sink, opts)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

func MetricsHandler() http.Handler { return metrics.Handler() }
