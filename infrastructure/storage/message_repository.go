package storage

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: time.Now}
}

// WithClock replaces the store clock.
func (m *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	m.now = now
	return m
}

// Append persists a message under "msg:{room}:{sentAt}:{id}".
// sentAt is taken from the store clock and forced strictly above the previous
// message of the room, so append order and key order never disagree.
// The room's lastMessage is refreshed in the same transaction when the room exists.
func (m *MessageRepository) Append(ctx context.Context, roomID domain.RoomID,
	senderID domain.UserID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: generate message id: %v", errors.ErrInternal, err)
	}

	var stored domain.Message
	err = update(ctx, m.db, m.log, func(txn *badger.Txn) error {
		sentAt := m.now().UTC()
		previous, err := readHead(txn, roomID)
		if err != nil {
			return err
		}
		if !sentAt.After(previous) {
			sentAt = previous.Add(time.Nanosecond)
		}

		stored = domain.Message{
			ID:       id.String(),
			RoomID:   roomID,
			SenderID: senderID,
			Content:  content,
			SentAt:   sentAt,
		}
		if err = txn.Set(messageKey(roomID, stored.Key()), MarshalMessage(stored)); err != nil {
			return err
		}
		if err = txn.Set(headKey(roomID), binary.BigEndian.AppendUint64(nil, uint64(sentAt.UnixNano()))); err != nil {
			return err
		}
		m.touchRoom(txn, stored)
		return nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: append message: %v", errors.ErrInternal, err)
	}
	return stored, nil
}

func readHead(txn *badger.Txn, roomID domain.RoomID) (time.Time, error) {
	item, err := txn.Get(headKey(roomID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var nanos uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupted head for room %s", roomID)
		}
		nanos = binary.BigEndian.Uint64(val)
		return nil
	})
	return fromNanos(nanos), err
}

// touchRoom never fails the append: lastMessage is only a weak reference.
func (m *MessageRepository) touchRoom(txn *badger.Txn, message domain.Message) {
	room, err := getRoom(txn, message.RoomID)
	if err != nil {
		m.log.Debug("Room not refreshed after append", "room_id", message.RoomID, "error", err)
		return
	}
	room.LastMessage = message.Ref()
	if err = txn.Set(roomKey(room.ID), MarshalRoom(room)); err != nil {
		m.log.Warn("Failed to refresh room last message", "room_id", room.ID, "error", err)
	}
}

// Query walks the room prefix from the anchor, excluding the anchor itself.
// Forward windows are returned oldest first, backward windows newest first.
func (m *MessageRepository) Query(ctx context.Context, roomID domain.RoomID,
	window domain.Window) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messageRoomPrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.Reverse = window.Direction == domain.Backward
		it := txn.NewIterator(options)
		defer it.Close()

		var anchor []byte
		seekKey := prefix
		if window.Anchor != nil {
			anchor = messageKey(roomID, *window.Anchor)
			seekKey = anchor
		} else if options.Reverse {
			// Past every timestamp of the room
			seekKey = append(bytes.Clone(prefix), 0xff)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == window.Limit {
				break
			}
			item := it.Item()
			if anchor != nil && bytes.Equal(item.Key(), anchor) {
				continue
			}
			err := item.Value(func(val []byte) error {
				message, err := UnmarshalMessage(val)
				if err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %v", errors.ErrInternal, err)
	}
	return messages, nil
}
