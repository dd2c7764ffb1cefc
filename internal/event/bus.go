// Package event provides the runtime's process-wide event bus: a single
// publisher for loop/tool/llm/memory events (spec.md §4.1/§6).
package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentvault/runtime/internal/logging"
)

// handlerBudget bounds how long a single subscriber may run before the bus
// gives up on it for this event. Delivery is otherwise synchronous and
// single-threaded relative to the emitter, per spec.md §4.1; this budget is
// what keeps a misbehaving handler from stalling the loop indefinitely.
const handlerBudget = 50 * time.Millisecond

// Subscriber receives published events.
type Subscriber func(Envelope)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is a process-wide pub/sub publisher with typed event variants.
// Subscribers register by Type or via SubscribeAll; registration returns a
// handle that cancels the subscription.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry
	nextID      uint64
}

// globalBus is the default, process-wide instance.
var globalBus = NewBus()

// NewBus creates a new, independent event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Type][]subscriberEntry)}
}

func (b *Bus) newID() uint64 { return atomic.AddUint64(&b.nextID, 1) }

// Subscribe registers fn for events of the given Type on the global bus.
func Subscribe(t Type, fn Subscriber) func() { return globalBus.Subscribe(t, fn) }

// Subscribe registers fn for events of the given Type.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.newID()
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers fn for every event type on the global bus.
func SubscribeAll(fn Subscriber) func() { return globalBus.SubscribeAll(fn) }

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[t]
	for i, e := range subs {
		if e.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish delivers env to every matching subscriber on the global bus.
func Publish(env Envelope) { globalBus.Publish(env) }

// Publish delivers env to every subscriber registered for env.Type plus
// every SubscribeAll subscriber, synchronously and in registration order.
// A subscriber that exceeds handlerBudget is warned about and skipped for
// the rest of this delivery; it is not unsubscribed.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[env.Type])+len(b.global))
	for _, e := range b.subscribers[env.Type] {
		subs = append(subs, e.fn)
	}
	for _, e := range b.global {
		subs = append(subs, e.fn)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		done := make(chan struct{})
		go func(s Subscriber) {
			defer close(done)
			s(env)
		}(sub)

		select {
		case <-done:
		case <-time.After(handlerBudget):
			logging.Logger.Warn().
				Str("eventType", string(env.Type)).
				Msg("event subscriber exceeded handler budget, dropping this delivery")
		}
	}
}

// Reset clears all subscribers from the global bus. Used by tests.
func Reset() { globalBus = NewBus() }
