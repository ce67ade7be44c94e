package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/pagination"
	"chat-relay/session"
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	lockStripes        = 64
	defaultSearchLimit = 20
)

type IChatService interface {
	StoreMessage(ctx context.Context, senderID domain.UserID, roomID domain.RoomID, content string) (domain.Message, error)
	RoomMessages(ctx context.Context, userID domain.UserID, roomID domain.RoomID, args pagination.Args) (pagination.Connection[domain.Message], error)
	Subscribe(ctx context.Context, authenticate session.Authenticator, roomID domain.RoomID) (*session.Session, error)
	Search(ctx context.Context, userID domain.UserID, roomID domain.RoomID, text string, limit int) ([]domain.Message, error)
}

type ChatConfig struct {
	MaxContentLength int
	Pagination       pagination.Config
	Session          session.Config
}

type ChatService struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	rooms    contract.IRoomRepository
	messages contract.IMessageRepository
	bus      contract.IEventBus
	searcher contract.IMessageSearcher
	cfg      ChatConfig
	// Striped per room: append and publish of one room happen in one
	// critical section so publish order is store order.
	locks [lockStripes]sync.Mutex
}

func NewChatService(log *slog.Logger, metrics *observability.Metrics, rooms contract.IRoomRepository,
	messages contract.IMessageRepository, bus contract.IEventBus, searcher contract.IMessageSearcher,
	cfg ChatConfig) *ChatService {
	return &ChatService{
		log:      log,
		metrics:  metrics,
		rooms:    rooms,
		messages: messages,
		bus:      bus,
		searcher: searcher,
		cfg:      cfg,
	}
}

func (s *ChatService) lockFor(roomID domain.RoomID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &s.locks[h.Sum32()%lockStripes]
}

// StoreMessage persists the message then publishes it to the room topic.
// Subscribers learn about the message only through the bus.
func (s *ChatService) StoreMessage(ctx context.Context, senderID domain.UserID,
	roomID domain.RoomID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return domain.Message{}, errors.ErrContentTooLong
	}
	if err := s.authorize(ctx, senderID, roomID); err != nil {
		return domain.Message{}, err
	}

	mu := s.lockFor(roomID)
	mu.Lock()
	defer mu.Unlock()

	message, err := s.messages.Append(ctx, roomID, senderID, content)
	if err != nil {
		return domain.Message{}, err
	}
	s.metrics.IncStored()
	s.bus.Publish(ctx, event.MessageAdded{Message: message})
	s.log.Debug("Message stored", "room_id", roomID, "user_id", senderID, "message_id", message.ID)
	return message, nil
}

// RoomMessages pages through the history of a room, oldest first.
func (s *ChatService) RoomMessages(ctx context.Context, userID domain.UserID, roomID domain.RoomID,
	args pagination.Args) (pagination.Connection[domain.Message], error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return pagination.Connection[domain.Message]{}, err
	}
	source := pagination.SourceFunc[domain.Message](func(ctx context.Context, window domain.Window) ([]domain.Message, error) {
		return s.messages.Query(ctx, roomID, window)
	})
	return pagination.Paginate[domain.Message](ctx, s.cfg.Pagination, source, domain.Message.Key, args)
}

// Subscribe opens a live session on the room. The returned session is Active;
// on error it is already Closed.
func (s *ChatService) Subscribe(ctx context.Context, authenticate session.Authenticator,
	roomID domain.RoomID) (*session.Session, error) {
	sess := session.New(s.log, s.metrics, roomID, s.cfg.Session)
	if err := sess.Open(ctx, authenticate, s.authorize, s.bus); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *ChatService) Search(ctx context.Context, userID domain.UserID, roomID domain.RoomID,
	text string, limit int) ([]domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.ErrEmptyQuery
	}
	if limit < 0 {
		return nil, errors.ErrNegativePageSize
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if maxSize := s.cfg.Pagination.MaxPageSize; maxSize > 0 && limit > maxSize {
		limit = maxSize
	}
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, roomID, text, limit)
}

// authorize lets only the two participants read or write a room.
func (s *ChatService) authorize(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error {
	if userID == "" {
		return errors.ErrUnauthorized
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return errors.ErrNotParticipant
	}
	return nil
}
