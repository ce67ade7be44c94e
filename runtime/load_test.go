package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_LoadTest_ManyRooms(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	req := require.New(t)
	const (
		rooms          = 50
		subscribersPer = 4
		messagesPer    = 200
	)
	bus := NewBus(slog.New(slog.DiscardHandler), nil)

	// Given every room has subscribers with room for the whole burst
	subscribers := make(map[domain.RoomID][]*chanSubscriber, rooms)
	for r := range rooms {
		roomID := domain.RoomID(fmt.Sprintf("room-%d", r))
		for range subscribersPer {
			sub := newChanSubscriber(messagesPer)
			bus.Subscribe(roomID, sub)
			subscribers[roomID] = append(subscribers[roomID], sub)
		}
	}

	// When one publisher per room publishes concurrently
	start := time.Now()
	var wg sync.WaitGroup
	for roomID := range subscribers {
		wg.Add(1)
		go func(roomID domain.RoomID) {
			defer wg.Done()
			for i := range messagesPer {
				bus.Publish(context.Background(), messageAdded(roomID, fmt.Sprintf("%d", i)))
			}
		}(roomID)
	}
	wg.Wait()
	t.Logf("published %d events in %v", rooms*messagesPer, time.Since(start))

	// Then every subscriber got its own room's events, in publish order
	for roomID, subs := range subscribers {
		for _, sub := range subs {
			req.Len(sub.events, messagesPer)
			for i := range messagesPer {
				e := (<-sub.events).(event.MessageAdded)
				req.Equal(roomID, e.RoomID())
				req.Equal(fmt.Sprintf("%d", i), e.Message.Content)
			}
		}
	}
	req.Equal(rooms, bus.Topics())
}
