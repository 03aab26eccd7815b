package testutil

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"mdviewer/internal/clock"
	"mdviewer/internal/events"
)

// HostNamespaces are the event namespaces the host core publishes in.
var HostNamespaces = []string{"plugin", "plugins", "markdown", "ui", "notification"}

// RecordedEvent is one event seen on the bus.
type RecordedEvent struct {
	Timestamp time.Time
	Event     string
	Data      any
}

// Field reads key from the event payload after a JSON round trip, so it
// works for maps and tagged structs alike.
func (r RecordedEvent) Field(key string) (any, bool) {
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	v, ok := fields[key]
	return v, ok
}

// EventRecorder records every event published in a set of namespaces.
type EventRecorder struct {
	clock clock.Clock
	subs  []*events.Subscription

	mu     sync.Mutex
	events []RecordedEvent
}

// NewEventRecorder subscribes to "<ns>:*" for every namespace.
func NewEventRecorder(bus *events.Bus, clk clock.Clock, namespaces ...string) *EventRecorder {
	r := &EventRecorder{clock: clk}
	for _, ns := range namespaces {
		r.subs = append(r.subs, bus.Subscribe(ns+events.Separator+events.Wildcard, r.record))
	}
	return r
}

func (r *EventRecorder) record(payload any) {
	we, ok := payload.(events.WildcardEvent)
	if !ok {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, RecordedEvent{Timestamp: r.clock.Now(), Event: we.Event, Data: we.Data})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *EventRecorder) Names() []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.Event)
	}
	return names
}

// Count returns how many times event was recorded.
func (r *EventRecorder) Count(event string) int {
	return len(FilterEvents(r.Events(), event))
}

// Clear forgets the recorded events.
func (r *EventRecorder) Clear() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Stop unsubscribes from the bus.
func (r *EventRecorder) Stop() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

// FilterEvents filters recorded events by name
func FilterEvents(recorded []RecordedEvent, event string) []RecordedEvent {
	var filtered []RecordedEvent
	for _, e := range recorded {
		if e.Event == event {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// FindEventWithData finds the latest event whose payload has key set to
// value.
func FindEventWithData(recorded []RecordedEvent, event, key string, value any) *RecordedEvent {
	for i := len(recorded) - 1; i >= 0; i-- {
		e := recorded[i]
		if e.Event != event {
			continue
		}
		if v, ok := e.Field(key); ok && reflect.DeepEqual(v, value) {
			return &e
		}
	}
	return nil
}

// FindEventForPlugin finds the latest event carrying pluginId.
func FindEventForPlugin(recorded []RecordedEvent, event, pluginID string) *RecordedEvent {
	return FindEventWithData(recorded, event, "pluginId", pluginID)
}
