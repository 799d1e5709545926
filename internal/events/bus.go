// Package events distributes workflow lifecycle notifications to
// in-process listeners: the SSE stream, tests, anything that wants to
// watch runs without coupling to the engine.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a notification kind.
type EventType string

// Event is implemented by every notification on the bus.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	WorkflowID() string
}

// BaseEvent carries the fields shared by all notifications.
type BaseEvent struct {
	Type     EventType `json:"type"`
	Time     time.Time `json:"timestamp"`
	Workflow string    `json:"workflow_id"`
}

func (e BaseEvent) EventType() EventType { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) WorkflowID() string   { return e.Workflow }

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent(kind EventType, workflowID string) BaseEvent {
	return BaseEvent{Type: kind, Time: time.Now(), Workflow: workflowID}
}

// priorityBuffer sizes the channels of priority listeners. Terminal
// events are rare, so a small fixed buffer suffices.
const priorityBuffer = 50

// subscription is one registered listener. A nil filter receives every
// event; priority subscriptions block the publisher instead of
// dropping.
type subscription struct {
	ch       chan Event
	filter   map[EventType]struct{}
	priority bool
}

func (s *subscription) wants(kind EventType) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[kind]
	return ok
}

// EventBus fans events out to subscribers. Ordinary subscribers get
// ring-buffer semantics: when a buffer is full, the oldest queued
// event is evicted to make room for the newest. Priority subscribers
// never lose an event.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	buffer  int
	dropped atomic.Int64
	closed  bool
}

// New creates a bus whose ordinary subscribers buffer bufferSize
// events each.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subs:   make(map[*subscription]struct{}),
		buffer: bufferSize,
	}
}

// Subscribe registers a listener for the named event types, or for
// everything when none are given.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	sub := &subscription{ch: make(chan Event, eb.buffer)}
	if len(types) > 0 {
		sub.filter = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.filter[t] = struct{}{}
		}
	}
	eb.add(sub)
	return sub.ch
}

// SubscribePriority registers a listener that must see every terminal
// event. Publishers block rather than drop for these channels.
func (eb *EventBus) SubscribePriority() <-chan Event {
	sub := &subscription{ch: make(chan Event, priorityBuffer), priority: true}
	eb.add(sub)
	return sub.ch
}

func (eb *EventBus) add(sub *subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		close(sub.ch)
		return
	}
	eb.subs[sub] = struct{}{}
}

// Unsubscribe removes a listener and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for sub := range eb.subs {
		if sub.ch == ch {
			delete(eb.subs, sub)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers an event to matching ordinary subscribers with
// drop-oldest semantics. Priority subscribers only see events sent
// through PublishPriority.
func (eb *EventBus) Publish(event Event) {
	eb.fanout(event, false)
}

// PublishPriority delivers like Publish and additionally blocks on
// priority subscribers, so terminal events are never lost.
func (eb *EventBus) PublishPriority(event Event) {
	eb.fanout(event, true)
}

func (eb *EventBus) fanout(event Event, includePriority bool) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for sub := range eb.subs {
		if sub.priority {
			if includePriority {
				sub.ch <- event
			}
			continue
		}
		if sub.wants(event.EventType()) {
			eb.offer(sub, event)
		}
	}
}

// offer enqueues without blocking, evicting the oldest buffered event
// when the channel is full.
func (eb *EventBus) offer(sub *subscription, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}
	select {
	case <-sub.ch:
		eb.dropped.Add(1)
	default:
	}
	select {
	case sub.ch <- event:
	default:
		eb.dropped.Add(1)
	}
}

// DroppedCount reports how many events ring-buffer eviction discarded.
func (eb *EventBus) DroppedCount() int64 {
	return eb.dropped.Load()
}

// Close shuts the bus down and closes every subscriber channel. Later
// publishes and Close calls are no-ops.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for sub := range eb.subs {
		close(sub.ch)
	}
	eb.subs = nil
}
