package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/drowsy/internal/event"
)

// Frame results reported by IncFrame.
const (
	FrameAccepted = "accepted"
	FrameStale    = "stale"
	FrameNoEyes   = "no_eyes"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drowsy",
			Subsystem: "detector",
			Name:      "events_total",
			Help:      "Number of events published on session buses, by kind.",
		}, []string{"kind"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drowsy",
			Subsystem: "detector",
			Name:      "frames_total",
			Help:      "Number of frames handed to sessions, by result.",
		}, []string{"result"},
	)
	perclosValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drowsy",
			Subsystem: "detector",
			Name:      "perclos",
			Help:      "Most recent PERCLOS value per session.",
		}, []string{"session"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drowsy",
			Subsystem: "detector",
			Name:      "state",
			Help:      "Current drowsiness state per session (1 = current, 0 = not).",
		}, []string{"session", "state"},
	)
	closureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drowsy",
			Subsystem: "detector",
			Name:      "eyelid_closure_duration_seconds",
			Help:      "Duration of completed eyelid closures.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2, 5},
		}, []string{"class"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drowsy",
			Subsystem: "detector",
			Name:      "sessions_active",
			Help:      "Number of open sessions.",
		},
	)
)

var drowsinessStates = []event.Kind{event.KindAwake, event.KindLikelyDrowsy, event.KindDrowsy}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{eventsTotal, framesTotal, perclosValue, currentState, closureDuration, sessionsActive}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncEvent(kind event.Kind) {
	if regOK.Load() {
		eventsTotal.WithLabelValues(string(kind)).Inc()
	}
}

func IncFrame(result string) {
	if regOK.Load() {
		framesTotal.WithLabelValues(result).Inc()
	}
}

func SetPERCLOS(session string, v float64) {
	if regOK.Load() {
		perclosValue.WithLabelValues(session).Set(v)
	}
}

// SetState marks level as the current state of session and clears the others.
func SetState(session string, level event.Kind) {
	if !regOK.Load() {
		return
	}
	for _, s := range drowsinessStates {
		var value float64
		if s == level {
			value = 1
		}
		currentState.WithLabelValues(session, string(s)).Set(value)
	}
}

func ObserveClosure(class string, seconds float64) {
	if regOK.Load() {
		closureDuration.WithLabelValues(class).Observe(seconds)
	}
}

func SessionOpened() {
	if regOK.Load() {
		sessionsActive.Inc()
	}
}

// SessionClosed decrements the active gauge and drops the per-session series.
func SessionClosed(session string) {
	if !regOK.Load() {
		return
	}
	sessionsActive.Dec()
	perclosValue.DeleteLabelValues(session)
	for _, s := range drowsinessStates {
		currentState.DeleteLabelValues(session, string(s))
	}
}

// Subscriber returns a catch-all bus subscriber feeding the collectors for session.
func Subscriber(session string) event.Subscriber {
	return event.SubscriberFunc(func(e event.Event) error {
		IncEvent(e.Kind())
		switch ev := e.(type) {
		case event.Drowsiness:
			SetPERCLOS(session, ev.Value())
			SetState(session, ev.Level())
		case event.NormalEyeBlinkEvent:
			ObserveClosure("normal", ev.Duration.Seconds())
		case event.SlowEyelidClosureEvent:
			ObserveClosure("slow", ev.Duration.Seconds())
		}
		return nil
	})
}
