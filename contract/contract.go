//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

// ISupervisor keeps a set of workers alive until its context ends.
type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

// Worker is a long-running loop owned by a supervisor.
// Returning nil means done; an error or a panic asks for a restart.
type Worker interface {
	Run(ctx context.Context) error
}

// Named lets a worker choose the label used in logs and metrics.
type Named interface {
	Name() string
}

// WorkerName returns the worker's own name when it has one,
// its concrete type name otherwise.
func WorkerName(w Worker) string {
	if w == nil {
		return "nil"
	}
	if n, ok := w.(Named); ok {
		return n.Name()
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is a permanent consumer fed by the fan-out worker.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Subscriber is a live consumer attached to a single room topic.
// Offer must never block: false means the buffer is full.
type Subscriber interface {
	ID() string
	Offer(e event.DomainEvent) bool
	// Drain is called once the bus has detached the subscriber for backpressure.
	Drain()
}

type IEventBus interface {
	Publish(ctx context.Context, e event.DomainEvent)
	Subscribe(roomID domain.RoomID, sub Subscriber) (unsubscribe func())
	TopicSize(roomID domain.RoomID) int
}

type IUserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

type IRoomRepository interface {
	// GetOrCreate returns the unique room of the pair, creating it when absent.
	// The boolean reports whether this call created it.
	GetOrCreate(ctx context.Context, a, b domain.UserID) (domain.Room, bool, error)
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error)
}

type IMessageRepository interface {
	Append(ctx context.Context, roomID domain.RoomID, senderID domain.UserID, content string) (domain.Message, error)
	Query(ctx context.Context, roomID domain.RoomID, window domain.Window) ([]domain.Message, error)
}

type IMessageSearcher interface {
	Search(ctx context.Context, roomID domain.RoomID, text string, limit int) ([]domain.Message, error)
}
