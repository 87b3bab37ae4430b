package event

import (
	"errors"
	"fmt"
)

var ErrNilHandler = errors.New("event: nil handler")

// Handler processes one event. A non-nil error aborts the publish that delivered it.
type Handler func(Event) error

// Subscription binds a handler to one event kind. KindAny receives every event.
type Subscription struct {
	Kind   Kind
	Handle Handler
}

// Subscriber declares the event kinds it handles.
type Subscriber interface {
	Subscriptions() []Subscription
}

// SubscriberFunc adapts a single catch-all function into a Subscriber.
type SubscriberFunc func(Event) error

func (f SubscriberFunc) Subscriptions() []Subscription {
	return []Subscription{{Kind: KindAny, Handle: Handler(f)}}
}

// HandlerError is returned by Publish when a handler fails.
type HandlerError struct {
	Kind Kind
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event: handler for %s failed: %v", e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type registration struct {
	seq    uint64
	handle Handler
}

// Bus is a synchronous, ordered, re-entrant dispatcher.
//
// Publish returns only after every handler registered for the event's kind (and every
// catch-all handler) has run, in registration order. Handlers may publish; nested
// events are delivered depth-first before the outer publish continues.
//
// Bus performs no locking. Callers serialize access per session.
type Bus struct {
	byKind map[Kind][]registration
	any    []registration
	seq    uint64
}

func NewBus() *Bus {
	return &Bus{byKind: make(map[Kind][]registration)}
}

// Register attaches every subscription declared by s.
func (b *Bus) Register(s Subscriber) error {
	subs := s.Subscriptions()
	for _, sub := range subs {
		if sub.Handle == nil {
			return fmt.Errorf("%w for kind %s", ErrNilHandler, sub.Kind)
		}
	}
	for _, sub := range subs {
		b.seq++
		r := registration{seq: b.seq, handle: sub.Handle}
		if sub.Kind == KindAny {
			b.any = append(b.any, r)
			continue
		}
		b.byKind[sub.Kind] = append(b.byKind[sub.Kind], r)
	}
	return nil
}

// Publish delivers e and returns the first handler error, wrapped in *HandlerError.
func (b *Bus) Publish(e Event) error {
	kind := e.Kind()
	// Snapshot: handlers registered during this publish see only later events.
	exact := b.byKind[kind]
	catchAll := b.any
	i, j := 0, 0
	for i < len(exact) || j < len(catchAll) {
		var r registration
		if j >= len(catchAll) || (i < len(exact) && exact[i].seq < catchAll[j].seq) {
			r = exact[i]
			i++
		} else {
			r = catchAll[j]
			j++
		}
		if err := r.handle(e); err != nil {
			var he *HandlerError
			if errors.As(err, &he) {
				return err
			}
			return &HandlerError{Kind: kind, Err: err}
		}
	}
	return nil
}

// handlers reports how many handlers would receive an event of kind k.
func (b *Bus) handlers(k Kind) int {
	if k == KindAny {
		return len(b.any)
	}
	return len(b.byKind[k]) + len(b.any)
}
