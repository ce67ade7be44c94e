package domain

import (
	"time"
)

type RoomID string

// MessageRef is a weak back-reference to the latest message of a room.
// It may lag behind the message store.
type MessageRef struct {
	ID     string
	SentAt time.Time
}

// Room is a two-party conversation. Participants are kept in canonical order
// so that (a, b) and (b, a) resolve to the same room.
type Room struct {
	ID           RoomID
	Participants [2]UserID
	LastMessage  *MessageRef
	CreatedAt    time.Time
}

func NewRoom(id RoomID, a, b UserID, at time.Time) Room {
	return Room{
		ID:           id,
		Participants: CanonicalPair(a, b),
		CreatedAt:    at,
	}
}

// CanonicalPair orders an unordered pair of users lexicographically.
func CanonicalPair(a, b UserID) [2]UserID {
	if b < a {
		return [2]UserID{b, a}
	}
	return [2]UserID{a, b}
}

func (r Room) HasParticipant(userID UserID) bool {
	return r.Participants[0] == userID || r.Participants[1] == userID
}

// ActivityKey orders rooms by last activity. Rooms without messages sit at
// the epoch so that they come last in a most-recent-first listing.
func (r Room) ActivityKey() SortKey {
	if r.LastMessage != nil {
		return SortKey{At: r.LastMessage.SentAt, ID: string(r.ID)}
	}
	return SortKey{At: time.Unix(0, 0).UTC(), ID: string(r.ID)}
}
