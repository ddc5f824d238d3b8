package event

import (
	"sync"
)

type subscriber struct {
	id int
	fn func(Event)
}

// Bus fans session events out to any number of subscribers per event type.
// Publish dispatches synchronously in registration order, so events of one
// stream are never reordered between subscribers. Subscribe and cancel are
// safe to call concurrently with Publish.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type][]subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]subscriber)}
}

// Subscribe registers fn for events of type t and returns a cancel func.
// Cancelling twice is a no-op.
func (b *Bus) Subscribe(t Type, fn func(Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber of its type. Handlers run on the
// caller's goroutine; a handler that blocks delays the stream behind it.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	list := b.subs[ev.GetType()]
	b.mu.RUnlock()

	for _, s := range list {
		s.fn(ev)
	}
}

// SubscriberCount reports the number of subscribers for a type.
func (b *Bus) SubscriberCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}
