package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/drowsy/internal/event"
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 5 * time.Second
)

type RecorderOptions struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Recorder is a session bus subscriber that turns drowsiness transitions, completed
// slow closures and presence changes into history events. Sends happen on a single
// worker goroutine; when the queue is full the event is dropped and a warning logged,
// so the cascade never waits on a sink.
type Recorder struct {
	sessionID string
	sink      Sink
	timeout   time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	queue  chan Event
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
	sent    atomic.Uint64

	// only touched from the session cascade
	level event.Kind
}

func NewRecorder(sessionID string, sink Sink, opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Recorder{
		sessionID: sessionID,
		sink:      sink,
		timeout:   opts.SendTimeout,
		log:       opts.Logger.With("session", sessionID, "component", "history"),
		queue:     make(chan Event, opts.QueueSize),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) Subscriptions() []event.Subscription {
	return []event.Subscription{
		{Kind: event.KindAwake, Handle: r.onDrowsiness},
		{Kind: event.KindLikelyDrowsy, Handle: r.onDrowsiness},
		{Kind: event.KindDrowsy, Handle: r.onDrowsiness},
		{Kind: event.KindSlowEyelidClosure, Handle: r.onSlowClosure},
		{Kind: event.KindAppActive, Handle: r.onPresence},
		{Kind: event.KindAppIdle, Handle: r.onPresence},
	}
}

func (r *Recorder) onDrowsiness(e event.Event) error {
	d, ok := e.(event.Drowsiness)
	if !ok || d.Level() == r.level {
		return nil
	}
	prev := r.level
	r.level = d.Level()
	r.enqueue(Event{
		Type:       EventStateChange,
		OccurredAt: e.Time(),
		Record: Record{
			SessionID: r.sessionID,
			State:     string(d.Level()),
			Previous:  string(prev),
			PERCLOS:   d.Value(),
		},
	})
	return nil
}

func (r *Recorder) onSlowClosure(e event.Event) error {
	c, ok := e.(event.Closure)
	if !ok {
		return nil
	}
	closedAt, d := c.Closure()
	r.enqueue(Event{
		Type:       EventSlowClosure,
		OccurredAt: closedAt.Add(d),
		Record: Record{
			SessionID:  r.sessionID,
			ClosedAt:   closedAt,
			DurationMS: d.Milliseconds(),
		},
	})
	return nil
}

func (r *Recorder) onPresence(e event.Event) error {
	state := "active"
	if e.Kind() == event.KindAppIdle {
		state = "idle"
	}
	r.enqueue(Event{
		Type:       EventPresence,
		OccurredAt: e.Time(),
		Record:     Record{SessionID: r.sessionID, State: state},
	})
	return nil
}

func (r *Recorder) enqueue(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		n := r.dropped.Add(1)
		r.log.Warn("history queue full, event dropped", "type", e.Type, "dropped", n)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.sink.Send(ctx, e)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.log.Warn("history send failed", "type", e.Type, "err", err)
			continue
		}
		r.sent.Add(1)
	}
}

// Close stops accepting events and waits until the queue is drained or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports sent, failed and dropped counts.
func (r *Recorder) Stats() (sent, failed, dropped uint64) {
	return r.sent.Load(), r.failed.Load(), r.dropped.Load()
}
