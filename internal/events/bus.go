// Package events implements the in-process publish/subscribe hub that carries
// every signal between the host application and its plugins.
//
// Delivery is synchronous: Publish returns only after every matching handler
// has run, and a handler that publishes again is served depth-first before
// the outer Publish continues. Events named "namespace:sub" are additionally
// delivered to subscribers of "namespace:*".
package events

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Separator splits an event namespace from its sub-event.
const Separator = ":"

// Wildcard is the sub-event that matches every event in a namespace.
const Wildcard = "*"

// Handler receives the payload passed to Publish.
type Handler func(payload any)

// WildcardEvent is the payload delivered to "namespace:*" subscribers.
type WildcardEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type handlerEntry struct {
	id      uint64
	handler Handler
}

// Bus is the event hub. The zero value is not usable; call NewBus.
type Bus struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	nextID   uint64
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger.Named("events"),
		handlers: make(map[string][]handlerEntry),
	}
}

// Subscribe registers handler for event and returns its subscription.
func (b *Bus) Subscribe(event string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], handlerEntry{id: id, handler: handler})

	return &Subscription{bus: b, event: event, id: id}
}

// SubscribeOnce registers handler so that it is removed right before its
// first invocation.
func (b *Bus) SubscribeOnce(event string, handler Handler) *Subscription {
	var sub *Subscription
	sub = b.Subscribe(event, func(payload any) {
		sub.Unsubscribe()
		handler(payload)
	})
	return sub
}

// Unsubscribe removes sub from event. A nil sub removes every handler
// registered for event.
func (b *Bus) Unsubscribe(event string, sub *Subscription) {
	if sub == nil {
		b.mu.Lock()
		delete(b.handlers, event)
		b.mu.Unlock()
		return
	}
	if sub.event != event {
		return
	}
	sub.Unsubscribe()
}

// Publish delivers payload to every handler of event, then to the
// namespace wildcard handlers. Panicking handlers are logged and skipped.
func (b *Bus) Publish(event string, payload any) {
	for _, h := range b.snapshot(event) {
		b.invoke(event, h, payload)
	}

	ns, ok := namespaceOf(event)
	if !ok {
		return
	}

	wildcard := ns + Separator + Wildcard
	if wildcard == event {
		return
	}

	wrapped := WildcardEvent{Event: event, Data: payload}
	for _, h := range b.snapshot(wildcard) {
		b.invoke(wildcard, h, wrapped)
	}
}

// HandlerCount returns the number of handlers registered for event.
func (b *Bus) HandlerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]handlerEntry)
}

func (b *Bus) snapshot(event string) []handlerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := b.handlers[event]
	if len(entries) == 0 {
		return nil
	}
	out := make([]handlerEntry, len(entries))
	copy(out, entries)
	return out
}

func (b *Bus) invoke(event string, h handlerEntry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler failed",
				zap.String("event", event),
				zap.Uint64("subscription", h.id),
				zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	h.handler(payload)
}

func (b *Bus) remove(event string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[event]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		next := make([]handlerEntry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, event)
		} else {
			b.handlers[event] = next
		}
		return true
	}
	return false
}

func namespaceOf(event string) (string, bool) {
	idx := strings.Index(event, Separator)
	if idx <= 0 {
		return "", false
	}
	return event[:idx], true
}
