// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"
)

// Message represents an immutable chat event.
type Message struct {
	ID       string // UUIDv7
	RoomID   RoomID
	SenderID UserID
	Content  string
	SentAt   time.Time
}

// Key returns the position of the message inside its room.
func (m Message) Key() SortKey {
	return SortKey{At: m.SentAt, ID: m.ID}
}

func (m Message) Ref() *MessageRef {
	return &MessageRef{ID: m.ID, SentAt: m.SentAt}
}
