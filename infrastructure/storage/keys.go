package storage

import (
	"chat-relay/domain"
	"fmt"
	"strings"
)

// Key layout. Timestamps are zero padded to 19 digits so that lexicographic
// order is chronological order.
const (
	messagePrefix  = "msg:"
	headPrefix     = "msg_head:"
	roomPrefix     = "room:"
	pairPrefix     = "room_pair:"
	userRoomPrefix = "user_room:"
	userPrefix     = "user:"
	usernamePrefix = "username:"
)

func messageRoomPrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%s:", messagePrefix, roomID))
}

func messageKey(roomID domain.RoomID, key domain.SortKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, roomID, key.At.UnixNano(), key.ID))
}

func headKey(roomID domain.RoomID) []byte {
	return []byte(headPrefix + string(roomID))
}

func roomKey(id domain.RoomID) []byte {
	return []byte(roomPrefix + string(id))
}

func pairKey(a, b domain.UserID) []byte {
	pair := domain.CanonicalPair(a, b)
	return []byte(fmt.Sprintf("%s%s:%s", pairPrefix, pair[0], pair[1]))
}

func userRoomsPrefix(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%s:", userRoomPrefix, userID))
}

func userRoomKey(userID domain.UserID, roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", userRoomPrefix, userID, roomID))
}

func userKey(id domain.UserID) []byte {
	return []byte(userPrefix + string(id))
}

func usernameKey(username string) []byte {
	return []byte(usernamePrefix + strings.ToLower(username))
}
