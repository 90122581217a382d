package event

import (
	"context"
	"sync"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block on slow I/O.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	kind Kind // zero means every kind
	fn   Handler
}

// Bus is a typed publish/subscribe registry keyed by Kind.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for one kind. It returns ErrUnknownKind for kinds
// outside the closed set.
func (b *Bus) Subscribe(k Kind, fn Handler) error {
	if !k.Valid() {
		return ErrUnknownKind
	}
	b.add(subscription{kind: k, fn: fn})
	return nil
}

// SubscribeAll registers fn for every kind.
func (b *Bus) SubscribeAll(fn Handler) {
	b.add(subscription{fn: fn})
}

func (b *Bus) add(s subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
}

// Variant is the closed set of concrete event types On accepts.
type Variant interface {
	ScoreChanged | RedZoneEntered | RedZoneExited | PossessionChanged | StatusChanged
	Event
}

// On registers a handler for the variant E.
//
//	event.On(bus, func(ctx context.Context, e event.ScoreChanged) { ... })
func On[E Variant](b *Bus, fn func(context.Context, E)) {
	var zero E
	b.add(subscription{kind: zero.Kind(), fn: func(ctx context.Context, e Event) {
		if typed, ok := e.(E); ok {
			fn(ctx, typed)
		}
	}})
}

// Publish delivers events in order. Within one event, handlers run in
// registration order.
func (b *Bus) Publish(ctx context.Context, events ...Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, e := range events {
		k := e.Kind()
		for _, s := range subs {
			if s.kind == 0 || s.kind == k {
				s.fn(ctx, e)
			}
		}
	}
}
