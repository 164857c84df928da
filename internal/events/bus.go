// Package events carries convoy's domain events: an in-process pub/sub bus
// for live subscribers and an append-only JSONL audit log.
package events

import (
	"sync"
	"time"
)

// EventType represents the kind of event being published.
type EventType string

const (
	// EventJobTriggered is published when a stage triggering is recorded.
	EventJobTriggered EventType = "job_triggered"
	// EventJobCompleted is published when a completion report is applied.
	EventJobCompleted EventType = "job_completed"
	// EventPromotionBlocked is published when a gate query denies promoting
	// a change into an environment.
	EventPromotionBlocked EventType = "promotion_blocked"
	// EventReportRejected is published when an inbox report cannot be
	// applied (unknown stage, malformed file).
	EventReportRejected EventType = "report_rejected"
)

// Event is one domain event.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	Application string
	Stage       string
	Data        map[string]any
}

// Subscriber receives events.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe bus. Delivery is asynchronous via
// buffered channels; when a subscriber's buffer is full the event is dropped
// rather than stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function. fn is called from a dedicated goroutine; a panic in it is
// contained so it cannot take the bus down.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() { b.unsubscribe(eventType, ch) }
}

// Publish delivers the event to every subscriber of its type. Never blocks.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close shuts down all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}

func (b *Bus) unsubscribe(eventType EventType, target chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channels := b.subscribers[eventType]
	for i, ch := range channels {
		if ch == target {
			b.subscribers[eventType] = append(channels[:i], channels[i+1:]...)
			close(ch)
			return
		}
	}
}
