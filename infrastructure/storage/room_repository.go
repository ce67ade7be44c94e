package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

// GetOrCreate resolves the room of an unordered pair.
// "room_pair:{min}:{max}" acts as a unique index: two concurrent creators both
// read the missing pair key, the second commit fails with a conflict and its
// retry adopts the room created by the first one.
func (r *RoomRepository) GetOrCreate(ctx context.Context, a, b domain.UserID) (domain.Room, bool, error) {
	if a == b {
		return domain.Room{}, false, errors.ErrSelfRoom
	}
	var (
		room    domain.Room
		created bool
	)
	err := update(ctx, r.db, r.log, func(txn *badger.Txn) error {
		created = false
		item, err := txn.Get(pairKey(a, b))
		switch {
		case err == nil:
			var id domain.RoomID
			if err = item.Value(func(val []byte) error {
				id = domain.RoomID(val)
				return nil
			}); err != nil {
				return err
			}
			room, err = getRoom(txn, id)
			return err
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		room = domain.NewRoom(domain.RoomID(uuid.NewString()), a, b, time.Now().UTC())
		created = true
		if err = txn.Set(roomKey(room.ID), MarshalRoom(room)); err != nil {
			return err
		}
		if err = txn.Set(pairKey(a, b), []byte(room.ID)); err != nil {
			return err
		}
		for _, participant := range room.Participants {
			if err = txn.Set(userRoomKey(participant, room.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, false, fmt.Errorf("%w: get or create room: %v", errors.ErrInternal, err)
	}
	if created {
		r.log.Debug("Room created", "room_id", room.ID)
	}
	return room, created, nil
}

func (r *RoomRepository) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("%w: get room: %v", errors.ErrInternal, err)
	}
	return room, nil
}

// ListForUser scans the "user_room:{user}:" index. Order is unspecified.
func (r *RoomRepository) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := userRoomsPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			roomID := domain.RoomID(it.Item().Key()[len(prefix):])
			room, err := getRoom(txn, roomID)
			if err != nil {
				r.log.Warn("Dangling room index", "user_id", userID, "room_id", roomID, "error", err)
				continue
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list rooms: %v", errors.ErrInternal, err)
	}
	return rooms, nil
}

func getRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err = item.Value(func(val []byte) error {
		room, err = UnmarshalRoom(val)
		return err
	})
	return room, err
}
