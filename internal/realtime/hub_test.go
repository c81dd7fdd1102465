package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

// loopbackBus is an in-process pub/sub that echoes published events back to
// the publishing instance's own subscription, like a real Redis channel.
type loopbackBus struct {
	mu       sync.Mutex
	handlers map[uuid.UUID]func(event string, payload []byte)
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{handlers: make(map[uuid.UUID]func(event string, payload []byte))}
}

func (b *loopbackBus) PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error {
	b.mu.Lock()
	handler := b.handlers[sessionID]
	b.mu.Unlock()
	if handler != nil {
		handler(event, payload)
	}
	return nil
}

func (b *loopbackBus) SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	b.handlers[sessionID] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.handlers, sessionID)
		b.mu.Unlock()
	}, nil
}

func newTestClient(sessionID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		send:      make(chan WSMessage, 8),
	}
}

func TestBroadcastAndPublishDeliversExactlyOnceWithRedis(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(nil, bus, bus, nil)
	sessionID := uuid.New()
	client := newTestClient(sessionID)
	hub.Register(client)
	defer hub.Unregister(client)

	hub.BroadcastToSessionAndPublish(sessionID, EventTick, map[string]int{"n": 1})

	if got := len(client.send); got != 1 {
		t.Fatalf("client received %d deliveries of one event, want 1", got)
	}
	msg := <-client.send
	if msg.Event != EventTick {
		t.Fatalf("event = %q, want %q", msg.Event, EventTick)
	}
}

func TestBroadcastAndPublishDeliversOnceWithoutRedis(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	sessionID := uuid.New()
	client := newTestClient(sessionID)
	hub.Register(client)
	defer hub.Unregister(client)

	hub.BroadcastToSessionAndPublish(sessionID, EventHypeMoment, map[string]int{"n": 1})

	if got := len(client.send); got != 1 {
		t.Fatalf("client received %d deliveries of one event, want 1", got)
	}
}

func TestUnregisterLastClientCancelsSubscription(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(nil, bus, bus, nil)
	sessionID := uuid.New()
	client := newTestClient(sessionID)
	hub.Register(client)
	hub.Unregister(client)

	bus.mu.Lock()
	_, subscribed := bus.handlers[sessionID]
	bus.mu.Unlock()
	if subscribed {
		t.Fatal("subscription still active after last client left")
	}
}
