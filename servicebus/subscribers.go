package servicebus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Subscribers is a publish hook that fans domain events out to listeners by
// event type. Listeners that implement QueueableListener are enqueued when a
// JobEnqueuer is configured, otherwise every listener runs synchronously.
//
// Subscribers is concurrency-safe.
type Subscribers struct {
	mu   sync.RWMutex
	subs map[cbus.MessageType][]subscription
	enq  cbus.JobEnqueuer

	// names maps a routing name to its event type. Names shared by
	// different Go types are kept in ambiguous and never resolve.
	names     map[string]cbus.MessageType
	ambiguous map[string]bool
}

type subscription struct {
	call func(ctx context.Context, e cbus.DomainEvent) error
	raw  any // original listener, for QueueableListener detection
	name string
}

// NewSubscribers constructs a hook. enq may be nil.
func NewSubscribers(enq cbus.JobEnqueuer) *Subscribers {
	return &Subscribers{
		subs:      make(map[cbus.MessageType][]subscription),
		enq:       enq,
		names:     make(map[string]cbus.MessageType),
		ambiguous: make(map[string]bool),
	}
}

var _ cbus.EventHook = (*Subscribers)(nil)

// Subscribe attaches a listener for events of type E.
func Subscribe[E cbus.DomainEvent](s *Subscribers, l cbus.EventListener[E]) {
	s.add(cbus.TypeOf[E](), subscription{
		call: adaptListener(l.Handle),
		raw:  l,
		name: reflect.TypeOf(l).String(),
	})
}

// SubscribeFunc attaches a listener function for events of type E.
func SubscribeFunc[E cbus.DomainEvent](s *Subscribers, name string, fn func(ctx context.Context, e E) error) {
	s.add(cbus.TypeOf[E](), subscription{call: adaptListener(fn), raw: fn, name: name})
}

func adaptListener[E cbus.DomainEvent](fn func(ctx context.Context, e E) error) func(context.Context, cbus.DomainEvent) error {
	return func(ctx context.Context, v cbus.DomainEvent) error {
		e, ok := v.(E)
		if !ok {
			return fmt.Errorf("publish domain %T: %w", v, berr.ErrHandlerTypeMismatch)
		}

		return fn(ctx, e)
	}
}

func (s *Subscribers) add(mt cbus.MessageType, sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[mt] = append(s.subs[mt], sub)

	name := mt.Name()
	if held, ok := s.names[name]; ok && held != mt {
		s.ambiguous[name] = true
		return
	}

	s.names[name] = mt
}

// Publish delivers e to every listener of its type. All errors are joined.
func (s *Subscribers) Publish(ctx context.Context, e cbus.DomainEvent) error {
	s.mu.RLock()
	subs := append([]subscription(nil), s.subs[cbus.TypeOfMessage(e)]...)
	s.mu.RUnlock()

	var errs []error

	for _, sub := range subs {
		if err := s.deliver(ctx, e, sub); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Subscribers) deliver(ctx context.Context, e cbus.DomainEvent, sub subscription) error {
	if s.enq == nil {
		return sub.call(ctx, e)
	}

	if ql, ok := sub.raw.(cbus.QueueableListener); ok {
		return s.enq.EnqueueListener(ctx, e, sub.name, cbus.QueueOptionsFor(ql))
	}

	return sub.call(ctx, e)
}

// Run invokes the listener registered under name for e's type without
// enqueuing. Workers use it to process jobs produced by EnqueueListener.
func (s *Subscribers) Run(ctx context.Context, name string, e cbus.DomainEvent) error {
	mt := cbus.TypeOfMessage(e)

	s.mu.RLock()
	subs := s.subs[mt]
	s.mu.RUnlock()

	for _, sub := range subs {
		if sub.name == name {
			return sub.call(ctx, e)
		}
	}

	return fmt.Errorf("run listener %s for %s: %w", name, mt, berr.ErrHandlerNotFound)
}

// Listeners reports the listener names subscribed to events of type mt.
func (s *Subscribers) Listeners(mt cbus.MessageType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.subs[mt]))
	for _, sub := range s.subs[mt] {
		names = append(names, sub.name)
	}

	return names
}

// QueuedListener describes a listener that is enqueued instead of run inline.
type QueuedListener struct {
	Event   cbus.MessageType
	Name    string
	Options cbus.QueueOptions
}

// Queued lists every listener implementing QueueableListener. Event types
// are ordered by name, listeners of one type by subscription order.
func (s *Subscribers) Queued() []QueuedListener {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []QueuedListener

	for mt, subs := range s.subs {
		for _, sub := range subs {
			if ql, ok := sub.raw.(cbus.QueueableListener); ok {
				out = append(out, QueuedListener{Event: mt, Name: sub.name, Options: cbus.QueueOptionsFor(ql)})
			}
		}
	}

	slices.SortStableFunc(out, func(a, b QueuedListener) int {
		return strings.Compare(a.Event.String(), b.Event.String())
	})

	return out
}

// Lookup resolves a subscribed event type by its short name. A name shared
// by two different event types does not resolve.
func (s *Subscribers) Lookup(name string) (cbus.MessageType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ambiguous[name] {
		return cbus.MessageType{}, false
	}

	mt, ok := s.names[name]

	return mt, ok
}
