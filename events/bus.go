// Package events provides the per-owner event bus used by the game engine,
// the lobby orchestrator and the chat mailbox.
//
// Delivery is fire-and-forget: Publish picks the matching handlers and hands each
// one to a Dispatcher, then returns. There is no ordering between handlers of one
// event, nor between two events published back to back. Handlers must therefore
// be reentrant, must not block, and must not assume they observe events in
// publication order.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/codexserver/logger"
)

// Handler reacts to an event. It runs on a dispatcher goroutine.
type Handler func(Event)

// Dispatcher runs tasks asynchronously.
type Dispatcher interface {
	Submit(task func()) error
}

// SubscriptionID identifies a registration returned by Subscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	key     string
	handler Handler
}

// Bus maps categories to subscriptions.
type Bus struct {
	mu         sync.RWMutex
	subs       map[Category][]subscription
	nextID     SubscriptionID
	dispatcher Dispatcher
	closed     bool
}

func NewBus(dispatcher Dispatcher) *Bus {
	return &Bus{
		subs:       make(map[Category][]subscription),
		dispatcher: dispatcher,
	}
}

// Subscribe registers handler for category. An empty key receives every event of
// the category; a concrete key only receives events that concern it.
func (b *Bus) Subscribe(category Category, key string, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[category] = append(b.subs[category], subscription{id: b.nextID, key: key, handler: handler})
	return b.nextID
}

// SubscribeAll registers handler for every category under key.
func (b *Bus) SubscribeAll(key string, handler Handler) []SubscriptionID {
	ids := make([]SubscriptionID, 0, len(Categories))
	for _, c := range Categories {
		ids = append(ids, b.Subscribe(c, key, handler))
	}
	return ids
}

// Unsubscribe removes a single registration.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c, list := range b.subs {
		b.subs[c] = remove(list, func(s subscription) bool { return s.id == id })
	}
}

// UnsubscribeAll drops every registration made under key, so observers of a
// departed player are never invoked again.
func (b *Bus) UnsubscribeAll(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c, list := range b.subs {
		b.subs[c] = remove(list, func(s subscription) bool { return s.key == key })
	}
}

// Publish hands e to every matching handler and returns without waiting.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	matched := make([]subscription, 0, len(b.subs[e.Category]))
	for _, s := range b.subs[e.Category] {
		if e.Concerns(s.key) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		s := s
		if err := b.dispatcher.Submit(func() { invoke(s, e) }); err != nil {
			logger.Log.Warnf("event %s for %q not dispatched: %v", e.Category, s.key, err)
		}
	}
}

// Close drops all subscriptions; later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[Category][]subscription)
}

// Len returns the number of registrations for category.
func (b *Bus) Len(category Category) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[category])
}

// invoke isolates a handler so one broken observer cannot affect the others.
func invoke(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Warnf("observer %q panicked on %s: %v", s.key, e.Category, fmt.Sprint(r))
		}
	}()
	s.handler(e)
}

func remove(list []subscription, drop func(subscription) bool) []subscription {
	out := list[:0:0]
	for _, s := range list {
		if !drop(s) {
			out = append(out, s)
		}
	}
	return out
}
