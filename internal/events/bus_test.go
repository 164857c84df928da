package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{}, 1)
	bus.Subscribe(EventJobCompleted, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(Event{
		Type:        EventJobCompleted,
		Application: "app1",
		Stage:       "system-test",
		Data:        map[string]any{"build": int64(7)},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "app1", got[0].Application)
	assert.Equal(t, "system-test", got[0].Stage)
	assert.False(t, got[0].Timestamp.IsZero(), "publish should stamp the event")
}

func TestBusOnlyMatchingTypeDelivered(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	delivered := make(chan Event, 8)
	bus.Subscribe(EventJobTriggered, func(e Event) { delivered <- e })

	bus.Publish(Event{Type: EventJobCompleted, Application: "app1"})
	bus.Publish(Event{Type: EventJobTriggered, Application: "app2"})

	select {
	case e := <-delivered:
		assert.Equal(t, "app2", e.Application)
	case <-time.After(2 * time.Second):
		t.Fatal("triggered event not delivered")
	}
	select {
	case e := <-delivered:
		t.Fatalf("unexpected extra event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	delivered := make(chan Event, 8)
	unsubscribe := bus.Subscribe(EventJobCompleted, func(e Event) { delivered <- e })
	unsubscribe()

	bus.Publish(Event{Type: EventJobCompleted})
	select {
	case <-delivered:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	// a subscriber that never drains its channel
	block := make(chan struct{})
	bus.Subscribe(EventJobCompleted, func(Event) { <-block })
	defer close(block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventJobCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
