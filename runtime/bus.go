package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
)

type topic struct {
	mu          sync.Mutex
	subscribers map[string]contract.Subscriber // subscriber ID -> subscriber
}

// Bus fans events out to the live subscribers of a room.
// The registry lock only guards the topic map; delivery happens under the
// topic's own lock, so rooms never block each other.
// Lock order is always registry, then topic.
type Bus struct {
	log     *slog.Logger
	metrics *observability.Metrics
	mu      sync.RWMutex
	topics  map[domain.RoomID]*topic
	// Events are also handed to permanent sinks through this channel, when set.
	fanout chan<- event.DomainEvent
}

func NewBus(log *slog.Logger, metrics *observability.Metrics) *Bus {
	return &Bus{
		log:     log,
		metrics: metrics,
		topics:  make(map[domain.RoomID]*topic),
	}
}

// WithFanout forwards every published event to the permanent sink worker.
func (b *Bus) WithFanout(fanout chan<- event.DomainEvent) *Bus {
	b.fanout = fanout
	return b
}

// Subscribe attaches sub to the room topic, creating the topic on the fly.
// The returned function detaches it and is safe to call more than once.
func (b *Bus) Subscribe(roomID domain.RoomID, sub contract.Subscriber) func() {
	b.mu.Lock()
	t, ok := b.topics[roomID]
	if !ok {
		t = &topic{subscribers: make(map[string]contract.Subscriber)}
		b.topics[roomID] = t
	}
	t.mu.Lock()
	t.subscribers[sub.ID()] = sub
	t.mu.Unlock()
	b.metrics.SetTopics(len(b.topics))
	b.mu.Unlock()

	b.log.Debug("Subscriber attached", "room_id", roomID, "subscriber_id", sub.ID())
	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(roomID, sub.ID()) })
	}
}

func (b *Bus) unsubscribe(roomID domain.RoomID, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[roomID]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subscribers, subscriberID)
	empty := len(t.subscribers) == 0
	t.mu.Unlock()

	// If no one is left in the room, remove the topic entirely
	if empty {
		delete(b.topics, roomID)
		b.metrics.SetTopics(len(b.topics))
	}
	b.log.Debug("Subscriber detached", "room_id", roomID, "subscriber_id", subscriberID)
}

// Publish delivers e to the live subscribers of its room, then hands it to the
// permanent sinks. It never blocks.
func (b *Bus) Publish(ctx context.Context, e event.DomainEvent) {
	b.metrics.IncPublished()
	b.Deliver(ctx, e)

	if b.fanout != nil {
		select {
		case b.fanout <- e:
		default:
			b.metrics.IncSinkDropped()
			b.log.Warn("Fan-out buffer full, permanent sinks skip event", "room_id", e.RoomID())
		}
	}
}

// Deliver makes one non-blocking delivery attempt per subscriber attached
// right now, skipping permanent sinks. Events relayed from another node come
// in this way so they are not relayed back.
// A subscriber whose buffer is full is detached and told to drain; it never
// receives a later event, so a local gap always ends the session. Events
// relayed between nodes are best effort and may be lost without notice.
func (b *Bus) Deliver(_ context.Context, e event.DomainEvent) int {
	roomID := e.RoomID()

	b.mu.RLock()
	t, ok := b.topics[roomID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	var overflowed []contract.Subscriber
	t.mu.Lock()
	delivered := 0
	for id, sub := range t.subscribers {
		if sub.Offer(e) {
			delivered++
			continue
		}
		delete(t.subscribers, id)
		overflowed = append(overflowed, sub)
	}
	empty := len(t.subscribers) == 0
	t.mu.Unlock()
	b.metrics.AddDelivered(delivered)

	for _, sub := range overflowed {
		b.log.Warn("Slow subscriber detached", "room_id", roomID, "subscriber_id", sub.ID())
		b.metrics.IncSubscriberDropped("backpressure")
		sub.Drain()
	}
	if empty && len(overflowed) > 0 {
		b.prune(roomID, t)
	}
	return delivered
}

// prune removes t if it is still registered and still empty.
func (b *Bus) prune(roomID domain.RoomID, t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[roomID] != t {
		return
	}
	t.mu.Lock()
	empty := len(t.subscribers) == 0
	t.mu.Unlock()
	if empty {
		delete(b.topics, roomID)
		b.metrics.SetTopics(len(b.topics))
	}
}

func (b *Bus) TopicSize(roomID domain.RoomID) int {
	b.mu.RLock()
	t, ok := b.topics[roomID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// Topics returns the number of rooms with at least one subscriber.
func (b *Bus) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}
