// Package api holds the wire representation shared by the HTTP, WebSocket
// and gRPC transports and by the command line client.
package api

import (
	"chat-relay/domain"
	"chat-relay/pagination"
	"time"

	"github.com/samber/lo"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageRef struct {
	ID     string    `json:"id"`
	SentAt time.Time `json:"sentAt"`
}

type Room struct {
	ID           string      `json:"id"`
	Participants []string    `json:"participants"`
	LastMessage  *MessageRef `json:"lastMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

type Message struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"roomId"`
	SenderID string    `json:"senderId"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type GetOrCreateRoomRequest struct {
	OtherUserID string `json:"otherUserId" validate:"required"`
}

type StoreMessageRequest struct {
	RoomID  string `json:"roomId" validate:"required"`
	Content string `json:"content"`
}

// PageRequest carries relay pagination arguments, plus the room for history.
type PageRequest struct {
	RoomID string  `json:"roomId,omitempty"`
	First  *int    `json:"first,omitempty"`
	After  *string `json:"after,omitempty"`
	Last   *int    `json:"last,omitempty"`
	Before *string `json:"before,omitempty"`
}

func (p PageRequest) Args() pagination.Args {
	return pagination.Args{First: p.First, After: p.After, Last: p.Last, Before: p.Before}
}

type SubscribeRequest struct {
	RoomID string `json:"roomId" validate:"required"`
}

type SearchRequest struct {
	RoomID string `json:"roomId" validate:"required"`
	Query  string `json:"q"`
	Limit  int    `json:"limit"`
}

type SearchResponse struct {
	Messages []Message `json:"messages"`
}

type Empty struct{}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error Error `json:"error"`
}

// Frame types pushed on the subscription socket.
const (
	FrameMessageAdded = "message_added"
	FrameError        = "error"
)

type Frame struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Error   *Error   `json:"error,omitempty"`
}

func FromUser(u domain.User) User {
	return User{ID: string(u.ID), Username: u.Username, CreatedAt: u.CreatedAt}
}

func FromRoom(r domain.Room) Room {
	room := Room{
		ID:           string(r.ID),
		Participants: []string{string(r.Participants[0]), string(r.Participants[1])},
		CreatedAt:    r.CreatedAt,
	}
	if r.LastMessage != nil {
		room.LastMessage = &MessageRef{ID: r.LastMessage.ID, SentAt: r.LastMessage.SentAt}
	}
	return room
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:       m.ID,
		RoomID:   string(m.RoomID),
		SenderID: string(m.SenderID),
		Content:  m.Content,
		SentAt:   m.SentAt,
	}
}

func FromMessages(messages []domain.Message) []Message {
	return lo.Map(messages, func(m domain.Message, _ int) Message { return FromMessage(m) })
}

func (m Message) ToDomain() domain.Message {
	return domain.Message{
		ID:       m.ID,
		RoomID:   domain.RoomID(m.RoomID),
		SenderID: domain.UserID(m.SenderID),
		Content:  m.Content,
		SentAt:   m.SentAt,
	}
}

// MapConnection converts the nodes of a connection, keeping cursors and page info.
func MapConnection[T, U any](c pagination.Connection[T], f func(T) U) pagination.Connection[U] {
	return pagination.Connection[U]{
		Edges: lo.Map(c.Edges, func(e pagination.Edge[T], _ int) pagination.Edge[U] {
			return pagination.Edge[U]{Cursor: e.Cursor, Node: f(e.Node)}
		}),
		PageInfo: c.PageInfo,
	}
}

type RoomConnection = pagination.Connection[Room]

type MessageConnection = pagination.Connection[Message]
