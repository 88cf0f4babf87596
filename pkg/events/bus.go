// Package events is the in-process push channel between the reminder engine
// and its listeners (tray, RPC clients, MQTT).
package events

import (
	"sync"
)

// Topics published by the app
const (
	TopicPrayerReminder = "prayer-reminder"
	TopicPlayAdhan      = "play-adhan"
)

// ReminderPayload is the body of a prayer-reminder event
type ReminderPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Event is one published message
type Event struct {
	Topic   string
	Payload any
}

// HandlerFunc receives events synchronously on the publisher's goroutine
type HandlerFunc func(Event)

// Bus fans events out to subscriptions
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus returns an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is a handle returned by Subscribe
type Subscription struct {
	bus    *Bus
	fn     HandlerFunc
	topics map[string]bool // nil means every topic

	// Held while delivering so Close can wait out an in-flight call
	mu     sync.Mutex
	closed bool
}

// Subscribe registers fn for the given topics, or for all topics if none are given
func (b *Bus) Subscribe(fn HandlerFunc, topics ...string) *Subscription {
	sub := &Subscription{bus: b, fn: fn}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every matching subscription
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		if sub.topics == nil || sub.topics[topic] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// Close drops all subscriptions; later publishes are ignored
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for sub := range subs {
		sub.markClosed()
	}
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(ev)
}

// Close unsubscribes. Once it returns the handler is never called again.
// It must not be called from inside the subscription's own handler.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.markClosed()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
