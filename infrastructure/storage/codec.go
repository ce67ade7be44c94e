package storage

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format so that fields can be added
// without rewriting existing values. Unknown fields are skipped on read.

const (
	fieldID protowire.Number = 1

	fieldMessageRoom    protowire.Number = 2
	fieldMessageSender  protowire.Number = 3
	fieldMessageContent protowire.Number = 4
	fieldMessageSentAt  protowire.Number = 5

	fieldRoomFirst      protowire.Number = 2
	fieldRoomSecond     protowire.Number = 3
	fieldRoomCreatedAt  protowire.Number = 4
	fieldRoomLastID     protowire.Number = 5
	fieldRoomLastSentAt protowire.Number = 6

	fieldUserName      protowire.Number = 2
	fieldUserHash      protowire.Number = 3
	fieldUserCreatedAt protowire.Number = 4
)

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendTime(b []byte, num protowire.Number, v time.Time) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v.UnixNano()))
}

func fromNanos(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}

// walk visits every field of a record. Length-delimited values are passed as
// strings, varints as integers.
func walk(b []byte, visit func(num protowire.Number, s string, v uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			visit(num, v, 0)
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			visit(num, "", v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func MarshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, fieldID, m.ID)
	b = appendString(b, fieldMessageRoom, string(m.RoomID))
	b = appendString(b, fieldMessageSender, string(m.SenderID))
	b = appendString(b, fieldMessageContent, m.Content)
	return appendTime(b, fieldMessageSentAt, m.SentAt)
}

func UnmarshalMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := walk(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case fieldID:
			m.ID = s
		case fieldMessageRoom:
			m.RoomID = domain.RoomID(s)
		case fieldMessageSender:
			m.SenderID = domain.UserID(s)
		case fieldMessageContent:
			m.Content = s
		case fieldMessageSentAt:
			m.SentAt = fromNanos(v)
		}
	})
	return m, err
}

func MarshalRoom(r domain.Room) []byte {
	var b []byte
	b = appendString(b, fieldID, string(r.ID))
	b = appendString(b, fieldRoomFirst, string(r.Participants[0]))
	b = appendString(b, fieldRoomSecond, string(r.Participants[1]))
	b = appendTime(b, fieldRoomCreatedAt, r.CreatedAt)
	if r.LastMessage != nil {
		b = appendString(b, fieldRoomLastID, r.LastMessage.ID)
		b = appendTime(b, fieldRoomLastSentAt, r.LastMessage.SentAt)
	}
	return b
}

func UnmarshalRoom(b []byte) (domain.Room, error) {
	var r domain.Room
	var last domain.MessageRef
	err := walk(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case fieldID:
			r.ID = domain.RoomID(s)
		case fieldRoomFirst:
			r.Participants[0] = domain.UserID(s)
		case fieldRoomSecond:
			r.Participants[1] = domain.UserID(s)
		case fieldRoomCreatedAt:
			r.CreatedAt = fromNanos(v)
		case fieldRoomLastID:
			last.ID = s
		case fieldRoomLastSentAt:
			last.SentAt = fromNanos(v)
		}
	})
	if last.ID != "" {
		r.LastMessage = &last
	}
	return r, err
}

func MarshalUser(u domain.User) []byte {
	var b []byte
	b = appendString(b, fieldID, string(u.ID))
	b = appendString(b, fieldUserName, u.Username)
	b = appendString(b, fieldUserHash, u.PasswordHash)
	return appendTime(b, fieldUserCreatedAt, u.CreatedAt)
}

func UnmarshalUser(b []byte) (domain.User, error) {
	var u domain.User
	err := walk(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case fieldID:
			u.ID = domain.UserID(s)
		case fieldUserName:
			u.Username = s
		case fieldUserHash:
			u.PasswordHash = s
		case fieldUserCreatedAt:
			u.CreatedAt = fromNanos(v)
		}
	})
	return u, err
}
