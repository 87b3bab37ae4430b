// Package session wires the detector components onto one event bus and serializes
// every input that reaches it.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/drowsy/internal/blink"
	"github.com/loykin/drowsy/internal/clockalign"
	"github.com/loykin/drowsy/internal/config"
	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/eyes"
	"github.com/loykin/drowsy/internal/face"
	"github.com/loykin/drowsy/internal/metrics"
	"github.com/loykin/drowsy/internal/perclos"
	"github.com/loykin/drowsy/internal/presence"
	"github.com/loykin/drowsy/internal/window"
)

var (
	// ErrStaleFrame rejects a frame whose timestamp is not after the last one seen.
	// The session stays usable.
	ErrStaleFrame = errors.New("stale frame")
	// ErrSessionFailed is returned once a subscriber has failed; the session must be replaced.
	ErrSessionFailed = errors.New("session failed")
	ErrSessionClosed = errors.New("session closed")
)

type options struct {
	id          string
	clock       clockalign.Clock
	log         *slog.Logger
	logEvents   bool
	metrics     bool
	subscribers []event.Subscriber
}

type Option func(*options)

// WithID overrides the generated session ID.
func WithID(id string) Option { return func(o *options) { o.id = id } }

// WithClock sets the host clock used for alignment and presence timestamps.
func WithClock(c clockalign.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithEventLogging registers the debug event logger ahead of every other subscriber.
func WithEventLogging() Option { return func(o *options) { o.logEvents = true } }

// WithMetrics feeds the Prometheus collectors from this session.
func WithMetrics() Option { return func(o *options) { o.metrics = true } }

// WithSubscribers registers additional subscribers ahead of the core components, so
// they receive every event in publish order, before any event it causes.
func WithSubscribers(s ...event.Subscriber) Option {
	return func(o *options) { o.subscribers = append(o.subscribers, s...) }
}

// Session owns one bus and every stateful component attached to it.
type Session struct {
	mu sync.Mutex

	id      string
	cfg     config.Detector
	clock   clockalign.Clock
	log     *slog.Logger
	metrics bool

	bus        *event.Bus
	opened     *eyes.Producer
	closed     *eyes.Producer
	pending    *blink.PendingClosureTracker
	store      *window.Store
	drowsiness *perclos.Classifier
	presence   *presence.Tracker

	aligner   clockalign.Aligner
	aligned   bool
	lastFrame time.Time
	hasFrame  bool

	tracker   *tracker
	failed    error
	isClosed  bool
	processed uint64
	dropped   uint64
	stale     uint64
}

// New validates cfg and builds a session. An invalid configuration wraps
// config.ErrInvalidConfig and no session is created.
func New(cfg config.Detector, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: clockalign.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	log := o.log.With("session", o.id)

	bus := event.NewBus()
	s := &Session{
		id:       o.id,
		cfg:      cfg,
		clock:    o.clock,
		log:      log,
		metrics:  o.metrics,
		bus:      bus,
		opened:   eyes.NewOpenedProducer(cfg.EyeOpenProbabilityThreshold, bus),
		closed:   eyes.NewClosedProducer(cfg.EyeOpenProbabilityThreshold, bus),
		pending:  blink.NewPendingClosureTracker(cfg.EyeOpenProbabilityThreshold, cfg.SlowEyelidClosureMinDuration, bus),
		store:    window.NewStore(),
		presence: presence.NewTracker(bus),
		tracker:  newTracker(log),
	}
	s.drowsiness = perclos.NewClassifier(cfg.Thresholds(), cfg.TimeWindow, s.store, bus)

	// Observers precede the producers so nested events reach them after their cause.
	subs := []event.Subscriber{s.tracker}
	if o.logEvents {
		subs = append(subs, event.NewLogger(log))
	}
	if o.metrics {
		subs = append(subs, metrics.Subscriber(o.id))
	}
	subs = append(subs, o.subscribers...)
	subs = append(subs,
		s.opened,
		s.closed,
		blink.NewDurationClassifier(cfg.SlowEyelidClosureMinDuration, bus),
		s.pending,
		s.store,
	)
	for _, sub := range subs {
		if err := bus.Register(sub); err != nil {
			return nil, fmt.Errorf("register subscriber: %w", err)
		}
	}
	if o.metrics {
		metrics.SessionOpened()
	}
	log.Debug("session created",
		"eye_open_threshold", cfg.EyeOpenProbabilityThreshold,
		"min_slow", cfg.SlowEyelidClosureMinDuration,
		"window", cfg.TimeWindow)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Bus exposes the session bus. Publishing on it directly bypasses serialization.
func (s *Session) Bus() *event.Bus { return s.bus }

func (s *Session) Config() config.Detector { return s.cfg }

// HandleFrame runs one frame through the cascade and asks for a drowsiness
// classification at the aligned host time. A frame carrying both eyes also counts as
// a face update for presence.
func (s *Session) HandleFrame(sample face.FrameSample) error {
	_, err := s.Process(sample)
	return err
}

// Process is HandleFrame returning the events published while handling the frame,
// in publish order.
func (s *Session) Process(sample face.FrameSample) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !s.aligned {
		s.aligner = clockalign.New(now, sample.Timestamp)
		s.aligned = true
	}
	if s.hasFrame && !sample.Timestamp.After(s.lastFrame) {
		s.stale++
		s.frameMetric(metrics.FrameStale)
		s.log.Debug("stale frame ignored",
			"timestamp", sample.Timestamp.UnixMilli(), "last", s.lastFrame.UnixMilli())
		return nil, fmt.Errorf("%w: %d <= %d", ErrStaleFrame, sample.Timestamp.UnixMilli(), s.lastFrame.UnixMilli())
	}
	s.lastFrame = sample.Timestamp
	s.hasFrame = true

	if !sample.HasBothEyes() {
		s.dropped++
		s.frameMetric(metrics.FrameNoEyes)
		return nil, nil
	}

	s.tracker.startCapture()
	defer s.tracker.stopCapture()
	if err := s.presence.FaceDetected(now); err != nil {
		return s.tracker.captured(), s.fail(err)
	}
	if err := s.bus.Publish(event.UpdateEvent{Sample: sample}); err != nil {
		return s.tracker.captured(), s.fail(err)
	}
	if _, err := s.drowsiness.MaybeProduceDrowsyEvent(s.aligner.ToFrameTime(now)); err != nil {
		return s.tracker.captured(), s.fail(err)
	}
	s.processed++
	s.frameMetric(metrics.FrameAccepted)
	return s.tracker.captured(), nil
}

// FaceDetected reports that a face appeared or was updated, stamped with the host clock.
func (s *Session) FaceDetected() error {
	return s.signalPresence(s.presence.FaceDetected)
}

// FaceLost reports that the tracked face disappeared, stamped with the host clock.
func (s *Session) FaceLost() error {
	return s.signalPresence(s.presence.FaceLost)
}

func (s *Session) signalPresence(fn func(time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if err := fn(s.clock.Now()); err != nil {
		return s.fail(err)
	}
	return nil
}

// Subscribe attaches sub to the bus. It only sees events published afterwards.
func (s *Session) Subscribe(sub event.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.bus.Register(sub)
}

// Err returns the failure that stopped the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Close waits for an in-flight cascade and rejects all further input.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true
	if s.metrics {
		metrics.SessionClosed(s.id)
	}
	s.log.Debug("session closed", "frames", s.processed)
	return nil
}

func (s *Session) usable() error {
	if s.isClosed {
		return ErrSessionClosed
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.failed)
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.failed = err
	s.log.Error("session failed", "err", err)
	return fmt.Errorf("%w: %w", ErrSessionFailed, err)
}

func (s *Session) frameMetric(result string) {
	if s.metrics {
		metrics.IncFrame(result)
	}
}
