package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chanSubscriber struct {
	id      string
	events  chan event.DomainEvent
	drained chan struct{}
}

func newChanSubscriber(size int) *chanSubscriber {
	return &chanSubscriber{
		id:      uuid.NewString(),
		events:  make(chan event.DomainEvent, size),
		drained: make(chan struct{}),
	}
}

func (s *chanSubscriber) ID() string { return s.id }

func (s *chanSubscriber) Offer(e event.DomainEvent) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

func (s *chanSubscriber) Drain() { close(s.drained) }

func messageAdded(roomID domain.RoomID, content string) event.MessageAdded {
	return event.MessageAdded{Message: domain.Message{ID: uuid.NewString(), RoomID: roomID, Content: content}}
}

func newTestBus() *Bus {
	return NewBus(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
}

func TestBus_Subscribe_And_Unsubscribe_One_Room(t *testing.T) {
	req := require.New(t)
	bus := newTestBus()
	roomID := domain.RoomID("room-1")

	// Given no topic exists
	req.Equal(0, bus.Topics())

	// When a subscriber attaches
	unsubscribe := bus.Subscribe(roomID, newChanSubscriber(1))

	// Then
	req.Equal(1, bus.Topics())
	req.Equal(1, bus.TopicSize(roomID))

	// When it detaches, twice
	unsubscribe()
	unsubscribe()

	// Then the topic doesn't exist anymore
	req.Equal(0, bus.Topics())
	req.Equal(0, bus.TopicSize(roomID))
}

func TestBus_Publish_OnlyToCurrentSubscribers(t *testing.T) {
	req := require.New(t)
	bus := newTestBus()
	roomID := domain.RoomID("room-1")
	early := newChanSubscriber(4)
	other := newChanSubscriber(4)
	bus.Subscribe(roomID, early)
	bus.Subscribe("room-2", other)

	// When a message is published before a late subscriber joins
	bus.Publish(context.Background(), messageAdded(roomID, "first"))
	late := newChanSubscriber(4)
	bus.Subscribe(roomID, late)
	bus.Publish(context.Background(), messageAdded(roomID, "second"))

	// Then the early subscriber got both, in order
	req.Len(early.events, 2)
	req.Equal("first", (<-early.events).(event.MessageAdded).Message.Content)
	req.Equal("second", (<-early.events).(event.MessageAdded).Message.Content)
	// And the late one got no replay
	req.Len(late.events, 1)
	req.Equal("second", (<-late.events).(event.MessageAdded).Message.Content)
	// And other rooms are untouched
	req.Empty(other.events)
}

func TestBus_Publish_DetachesSlowSubscriber(t *testing.T) {
	req := require.New(t)
	bus := newTestBus()
	roomID := domain.RoomID("room-1")
	slow := newChanSubscriber(1)
	fast := newChanSubscriber(10)
	bus.Subscribe(roomID, slow)
	bus.Subscribe(roomID, fast)

	// When more messages are published than the slow buffer can hold
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), messageAdded(roomID, fmt.Sprint(i)))
	}

	// Then the slow subscriber is told to drain and detached
	select {
	case <-slow.drained:
	default:
		req.Fail("slow subscriber should have been drained")
	}
	req.Equal(1, bus.TopicSize(roomID))
	req.Len(slow.events, 1)
	// And the fast one received everything
	req.Len(fast.events, 5)
}

func TestBus_Publish_LastSlowSubscriberRemovesTopic(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	bus := newTestBus()
	roomID := domain.RoomID("room-1")

	sub := mocks.NewMockSubscriber(ctrl)
	sub.EXPECT().ID().Return("slow").AnyTimes()
	// Given a subscriber whose buffer is always full
	sub.EXPECT().Offer(gomock.Any()).Return(false).Times(1)
	sub.EXPECT().Drain().Times(1)
	bus.Subscribe(roomID, sub)

	// When a message is published
	bus.Publish(context.Background(), messageAdded(roomID, "hi"))

	// Then no topic is left behind
	req.Equal(0, bus.Topics())
}

func TestBus_Publish_Fanout(t *testing.T) {
	req := require.New(t)
	fanout := make(chan event.DomainEvent, 1)
	bus := newTestBus().WithFanout(fanout)

	// When two events are published and the fan-out buffer holds one
	bus.Publish(context.Background(), messageAdded("room-1", "kept"))
	bus.Publish(context.Background(), messageAdded("room-1", "dropped"))

	// Then publish did not block and the first event was forwarded
	req.Len(fanout, 1)
	req.Equal("kept", (<-fanout).(event.MessageAdded).Message.Content)
}

func TestBus_Deliver_SkipsFanout(t *testing.T) {
	req := require.New(t)
	fanout := make(chan event.DomainEvent, 1)
	bus := newTestBus().WithFanout(fanout)
	sub := newChanSubscriber(1)
	defer bus.Subscribe("room-1", sub)()

	// When a relayed event is delivered
	delivered := bus.Deliver(context.Background(), messageAdded("room-1", "relayed"))

	// Then live subscribers got it but permanent sinks did not
	req.Equal(1, delivered)
	req.Len(sub.events, 1)
	req.Empty(fanout)
}

func TestBus_ConcurrentSubscribers_NoLeak(t *testing.T) {
	req := require.New(t)
	bus := newTestBus()
	rooms := []domain.RoomID{"a", "b", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		roomID := rooms[i%len(rooms)]
		go func() {
			defer wg.Done()
			unsubscribe := bus.Subscribe(roomID, newChanSubscriber(2))
			bus.Publish(context.Background(), messageAdded(roomID, "x"))
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), messageAdded(roomID, "y"))
		}()
	}
	wg.Wait()

	// Then every topic has been removed
	req.Equal(0, bus.Topics())
	for _, roomID := range rooms {
		req.Equal(0, bus.TopicSize(roomID))
	}
}
