package event

import (
	"chat-relay/domain"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessageAdded is published once a message has been durably stored.
type MessageAdded struct {
	Message domain.Message
}

func (m MessageAdded) RoomID() domain.RoomID {
	return m.Message.RoomID
}
