package server

import (
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/wire"
	"chat-relay/services"
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ChatServer struct {
	log   *slog.Logger
	auth  services.IAuthService
	rooms services.IRoomService
	chat  services.IChatService
}

var _ wire.ChatServiceServer = (*ChatServer)(nil)

func NewChatServer(log *slog.Logger, authService services.IAuthService,
	rooms services.IRoomService, chat services.IChatService) *ChatServer {
	return &ChatServer{log: log, auth: authService, rooms: rooms, chat: chat}
}

func (s *ChatServer) Register(ctx context.Context, req *api.AuthRequest) (*api.AuthResponse, error) {
	session, err := s.auth.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.AuthResponse{Token: session.Token, User: api.FromUser(session.User)}, nil
}

func (s *ChatServer) Login(ctx context.Context, req *api.AuthRequest) (*api.AuthResponse, error) {
	session, err := s.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.AuthResponse{Token: session.Token, User: api.FromUser(session.User)}, nil
}

func (s *ChatServer) Me(ctx context.Context, _ *api.Empty) (*api.User, error) {
	userID, _ := auth.UserFromContext(ctx)
	user, err := s.auth.Me(ctx, userID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	res := api.FromUser(user)
	return &res, nil
}

func (s *ChatServer) GetOrCreateRoom(ctx context.Context, req *api.GetOrCreateRoomRequest) (*api.Room, error) {
	if err := auth.Struct(req); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	userID, _ := auth.UserFromContext(ctx)
	room, err := s.rooms.GetOrCreateRoom(ctx, userID, domain.UserID(req.OtherUserID))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	res := api.FromRoom(room)
	return &res, nil
}

func (s *ChatServer) Rooms(ctx context.Context, req *api.PageRequest) (*api.RoomConnection, error) {
	userID, _ := auth.UserFromContext(ctx)
	connection, err := s.rooms.Rooms(ctx, userID, req.Args())
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	res := api.MapConnection(connection, api.FromRoom)
	return &res, nil
}

func (s *ChatServer) RoomMessages(ctx context.Context, req *api.PageRequest) (*api.MessageConnection, error) {
	userID, _ := auth.UserFromContext(ctx)
	connection, err := s.chat.RoomMessages(ctx, userID, domain.RoomID(req.RoomID), req.Args())
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	res := api.MapConnection(connection, api.FromMessage)
	return &res, nil
}

// StoreMessage answers with the stored message. Subscribers of the room,
// the sender included, receive it separately through MessageAdded.
func (s *ChatServer) StoreMessage(ctx context.Context, req *api.StoreMessageRequest) (*api.Message, error) {
	userID, _ := auth.UserFromContext(ctx)
	message, err := s.chat.StoreMessage(ctx, userID, domain.RoomID(req.RoomID), req.Content)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	res := api.FromMessage(message)
	return &res, nil
}

func (s *ChatServer) SearchMessages(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error) {
	userID, _ := auth.UserFromContext(ctx)
	messages, err := s.chat.Search(ctx, userID, domain.RoomID(req.RoomID), req.Query, req.Limit)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.SearchResponse{Messages: api.FromMessages(messages)}, nil
}

// MessageAdded blocks until the client goes away or the session closes.
// A client too slow to keep up ends with ResourceExhausted once the drain
// timeout expires, even while a Send is stuck on a full flow-control window:
// returning cancels the stream and releases that Send.
func (s *ChatServer) MessageAdded(req *api.SubscribeRequest, stream wire.MessageAddedServer) error {
	ctx := stream.Context()
	roomID := domain.RoomID(req.RoomID)
	sess, err := s.chat.Subscribe(ctx, auth.UserFromContext, roomID)
	if err != nil {
		return errors.MapToGRPCError(err)
	}

	served := make(chan error, 1)
	go func() {
		served <- sess.Serve(ctx, func(_ context.Context, e event.DomainEvent) error {
			evt, ok := e.(event.MessageAdded)
			if !ok {
				return nil
			}
			message := api.FromMessage(evt.Message)
			return stream.Send(&message)
		})
	}()
	select {
	case err = <-served:
	case <-sess.Done():
		err = sess.Err()
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrBackpressure):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		s.log.Warn("Subscription stream ended", "room_id", roomID, "session_id", sess.ID(), "error", err)
		return errors.MapToGRPCError(err)
	}
}
