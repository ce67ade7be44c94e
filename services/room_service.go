package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/pagination"
	"context"
	"log/slog"
	"slices"
)

type IRoomService interface {
	GetOrCreateRoom(ctx context.Context, requesterID, otherUserID domain.UserID) (domain.Room, error)
	Rooms(ctx context.Context, userID domain.UserID, args pagination.Args) (pagination.Connection[domain.Room], error)
}

type RoomService struct {
	log   *slog.Logger
	users contract.IUserRepository
	rooms contract.IRoomRepository
	page  pagination.Config
}

func NewRoomService(log *slog.Logger, users contract.IUserRepository,
	rooms contract.IRoomRepository, page pagination.Config) *RoomService {
	return &RoomService{log: log, users: users, rooms: rooms, page: page}
}

// GetOrCreateRoom returns the unique room shared by the requester and the
// other user, creating it on first contact.
func (s *RoomService) GetOrCreateRoom(ctx context.Context, requesterID, otherUserID domain.UserID) (domain.Room, error) {
	if requesterID == "" {
		return domain.Room{}, errors.ErrUnauthorized
	}
	if otherUserID == requesterID {
		return domain.Room{}, errors.ErrSelfRoom
	}
	if _, err := s.users.GetByID(ctx, otherUserID); err != nil {
		return domain.Room{}, err
	}

	room, created, err := s.rooms.GetOrCreate(ctx, requesterID, otherUserID)
	if err != nil {
		return domain.Room{}, err
	}
	if created {
		s.log.Info("Room created", "room_id", room.ID, "user_id", requesterID)
	}
	return room, nil
}

// Rooms lists the rooms of userID, most recent activity first.
// The activity key moves when a message lands, so a cursor over rooms is only
// stable between two messages of the same room.
func (s *RoomService) Rooms(ctx context.Context, userID domain.UserID,
	args pagination.Args) (pagination.Connection[domain.Room], error) {
	if userID == "" {
		return pagination.Connection[domain.Room]{}, errors.ErrUnauthorized
	}
	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return pagination.Connection[domain.Room]{}, err
	}

	mostRecentFirst := func(a, b domain.SortKey) bool { return b.Less(a) }
	slices.SortFunc(rooms, func(a, b domain.Room) int {
		switch {
		case mostRecentFirst(a.ActivityKey(), b.ActivityKey()):
			return -1
		case mostRecentFirst(b.ActivityKey(), a.ActivityKey()):
			return 1
		default:
			return 0
		}
	})

	source := pagination.SliceSource[domain.Room]{Items: rooms, KeyOf: domain.Room.ActivityKey, Less: mostRecentFirst}
	return pagination.Paginate[domain.Room](ctx, s.page, source, domain.Room.ActivityKey, args)
}
