// Package projection builds the client-side view of a room from observed events.
// A sent message stays pending until the subscription delivers it back.
package projection

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"sync"
)

// Pending is a message sent locally and not yet seen on the subscription.
type Pending struct {
	Seq     int
	Content string
}

// Timeline is safe for concurrent use: sends and subscription events
// usually arrive on different goroutines.
type Timeline struct {
	mu        sync.Mutex
	owner     domain.UserID
	seq       int
	pending   []Pending
	confirmed []domain.Message
	seen      map[string]struct{}
}

func NewTimeline(owner domain.UserID) *Timeline {
	return &Timeline{owner: owner, seen: make(map[string]struct{})}
}

// Send records an optimistic entry. A successful mutation does not confirm it.
func (t *Timeline) Send(content string) Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	p := Pending{Seq: t.seq, Content: content}
	t.pending = append(t.pending, p)
	return p
}

// Observe applies a message from the subscription. It reports false for an
// id already observed. A message of the owner clears the oldest pending entry
// with the same content.
func (t *Timeline) Observe(m domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[m.ID]; ok {
		return false
	}
	t.seen[m.ID] = struct{}{}
	t.confirmed = append(t.confirmed, m)
	if m.SenderID == t.owner {
		for i, p := range t.pending {
			if p.Content == m.Content {
				t.pending = append(t.pending[:i], t.pending[i+1:]...)
				break
			}
		}
	}
	return true
}

func (t *Timeline) Consume(e event.DomainEvent) bool {
	switch evt := e.(type) {
	case event.MessageAdded:
		return t.Observe(evt.Message)
	default:
		return false
	}
}

// Reset replaces the confirmed list with a history page, as after a reconnect.
// Pending entries survive: their echo may still arrive.
func (t *Timeline) Reset(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmed = append([]domain.Message(nil), history...)
	t.seen = make(map[string]struct{}, len(history))
	for _, m := range history {
		t.seen[m.ID] = struct{}{}
	}
}

func (t *Timeline) Pending() []Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Pending(nil), t.pending...)
}

func (t *Timeline) Confirmed() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Message(nil), t.confirmed...)
}
