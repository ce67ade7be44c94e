package server_test

import (
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/grpc/client"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/storage"
	"chat-relay/pagination"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/session"
	"chat-relay/sink"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const password = "ComplexPass123!"

type stack struct {
	listener *bufconn.Listener
	bus      *runtime.Bus
	chat     *server.ChatServer
}

func newStack(t *testing.T) stack {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithCancel(context.Background())

	index := sink.NewSearchIndex(log, writer)
	fanout := make(chan event.DomainEvent, 16)
	bus := runtime.NewBus(log, nil).WithFanout(fanout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = workers.NewEventFanout(log, nil, fanout, time.Second, index).Run(ctx)
	}()

	users := storage.NewUserRepository(db, log)
	rooms := storage.NewRoomRepository(db, log)
	tokens := auth.NewTokenManager("secret", time.Hour)
	chat := services.NewChatService(log, nil, rooms, storage.NewMessageRepository(db, log), bus, index,
		services.ChatConfig{
			MaxContentLength: 4000,
			Pagination:       pagination.DefaultConfig(),
			Session:          session.Config{BufferSize: 16, DrainTimeout: 100 * time.Millisecond},
		})
	chatServer := server.NewChatServer(log,
		services.NewAuthService(log, users, tokens),
		services.NewRoomService(log, users, rooms, pagination.DefaultConfig()),
		chat)

	listener := bufconn.Listen(1 << 20)
	s := server.NewServer(log, tokens, chatServer)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(func() {
		s.Stop()
		cancel()
		<-done
		_ = index.Close()
	})
	return stack{listener: listener, bus: bus, chat: chatServer}
}

func (s stack) dialer(context.Context, string) (net.Conn, error) {
	return s.listener.Dial()
}

func (s stack) client(t *testing.T, username string) *client.ChatClient {
	t.Helper()
	c, err := client.Dial("passthrough:///bufnet", grpc.WithContextDialer(s.dialer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Register(context.Background(), username, password)
	require.NoError(t, err)
	return c
}

func code(err error) codes.Code {
	return status.Code(err)
}

func TestChatServer_AuthAndRooms(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	alice, bob := s.client(t, "alice"), s.client(t, "bob")

	// Given alice is known to the server
	me, err := alice.Me(ctx)
	req.NoError(err)
	req.Equal("alice", me.Username)

	// When both users open the room in either order
	fromAlice, err := alice.GetOrCreateRoom(ctx, string(bob.UserID()))
	req.NoError(err)
	fromBob, err := bob.GetOrCreateRoom(ctx, string(alice.UserID()))
	req.NoError(err)

	// Then it is the same room, listed for both
	req.Equal(fromAlice.ID, fromBob.ID)
	connection, err := bob.Rooms(ctx, api.PageRequest{})
	req.NoError(err)
	req.Equal([]string{fromAlice.ID}, lo.Map(connection.Nodes(), func(r api.Room, _ int) string { return r.ID }))
}

func TestChatServer_Unauthenticated(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	anonymous, err := client.Dial("passthrough:///bufnet", grpc.WithContextDialer(s.dialer))
	req.NoError(err)
	t.Cleanup(func() { _ = anonymous.Close() })

	_, err = anonymous.Me(context.Background())
	req.Equal(codes.Unauthenticated, code(err))

	_, err = anonymous.Login(context.Background(), "ghost", password)
	req.Equal(codes.Unauthenticated, code(err))
}

func TestChatServer_HealthIsPublic(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(s.dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })

	res, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, res.Status)
}

func TestChatServer_HistoryAndErrors(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	alice, bob, mallory := s.client(t, "alice"), s.client(t, "bob"), s.client(t, "mallory")
	room, err := alice.GetOrCreateRoom(ctx, string(bob.UserID()))
	req.NoError(err)

	for _, content := range []string{"one", "two", "three"} {
		_, err = alice.StoreMessage(ctx, room.ID, content)
		req.NoError(err)
	}

	t.Run("first two", func(t *testing.T) {
		req := require.New(t)
		connection, err := bob.RoomMessages(ctx, api.PageRequest{RoomID: room.ID, First: lo.ToPtr(2)})
		req.NoError(err)
		req.Equal([]string{"one", "two"}, lo.Map(connection.Nodes(), func(m api.Message, _ int) string { return m.Content }))
		req.True(connection.PageInfo.HasNextPage)
	})

	t.Run("errors map to codes", func(t *testing.T) {
		tests := []struct {
			name string
			call func() error
			want codes.Code
		}{
			{"blank content", func() error { _, err := alice.StoreMessage(ctx, room.ID, "  "); return err }, codes.InvalidArgument},
			{"outsider", func() error { _, err := mallory.StoreMessage(ctx, room.ID, "hi"); return err }, codes.Unauthenticated},
			{"unknown room", func() error {
				_, err := alice.RoomMessages(ctx, api.PageRequest{RoomID: "nope"})
				return err
			}, codes.NotFound},
			{"mixed directions", func() error {
				_, err := alice.RoomMessages(ctx, api.PageRequest{RoomID: room.ID, First: lo.ToPtr(1), Last: lo.ToPtr(1)})
				return err
			}, codes.InvalidArgument},
			{"self room", func() error { _, err := alice.GetOrCreateRoom(ctx, string(alice.UserID())); return err }, codes.InvalidArgument},
			{"missing other user", func() error { _, err := alice.GetOrCreateRoom(ctx, ""); return err }, codes.InvalidArgument},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				require.Equal(t, tt.want, code(tt.call()))
			})
		}
	})
}

func TestChatServer_MessageAdded(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.client(t, "alice"), s.client(t, "bob")
	room, err := alice.GetOrCreateRoom(context.Background(), string(bob.UserID()))
	req.NoError(err)

	// Given bob is subscribed
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := bob.Subscribe(ctx, room.ID)
	req.NoError(err)
	req.Eventually(func() bool { return s.bus.TopicSize(domain.RoomID(room.ID)) == 1 }, time.Second, 10*time.Millisecond)

	// When alice sends two messages
	first, err := alice.StoreMessage(context.Background(), room.ID, "hello")
	req.NoError(err)
	second, err := alice.StoreMessage(context.Background(), room.ID, "world")
	req.NoError(err)

	// Then bob receives them in store order
	got, err := stream.Recv()
	req.NoError(err)
	req.Equal(first.ID, got.ID)
	got, err = stream.Recv()
	req.NoError(err)
	req.Equal(second.ID, got.ID)

	// And canceling the stream releases the topic
	cancel()
	req.Eventually(func() bool { return s.bus.Topics() == 0 }, time.Second, 10*time.Millisecond)
}

// stalledStream behaves like a client that stopped reading: Send waits on a
// full flow-control window and never comes back on its own.
type stalledStream struct {
	ctx     context.Context
	sending chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stalledStream) Context() context.Context { return s.ctx }

func (s *stalledStream) Send(*api.Message) error {
	s.once.Do(func() { close(s.sending) })
	<-s.release
	return io.EOF
}

func TestChatServer_MessageAdded_StalledClient(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	alice, bob := s.client(t, "alice"), s.client(t, "bob")
	room, err := alice.GetOrCreateRoom(ctx, string(bob.UserID()))
	req.NoError(err)

	// Given bob's stream is stuck sending the first message
	stream := &stalledStream{
		ctx:     auth.WithClaims(ctx, &auth.CustomClaims{UserID: string(bob.UserID()), Username: "bob"}),
		sending: make(chan struct{}),
		release: make(chan struct{}),
	}
	t.Cleanup(func() { close(stream.release) })
	ended := make(chan error, 1)
	go func() { ended <- s.chat.MessageAdded(&api.SubscribeRequest{RoomID: room.ID}, stream) }()
	req.Eventually(func() bool { return s.bus.TopicSize(domain.RoomID(room.ID)) == 1 }, time.Second, 10*time.Millisecond)
	_, err = alice.StoreMessage(ctx, room.ID, "first")
	req.NoError(err)
	select {
	case <-stream.sending:
	case <-time.After(time.Second):
		req.FailNow("first message never reached the stream")
	}

	// When alice overflows the 16-slot buffer behind it
	for i := 0; i < 20; i++ {
		_, err = alice.StoreMessage(ctx, room.ID, fmt.Sprintf("message %d", i))
		req.NoError(err)
	}

	// Then the handler gives up after the drain timeout without waiting for Send
	select {
	case err = <-ended:
		req.Equal(codes.ResourceExhausted, code(err))
	case <-time.After(time.Second):
		req.FailNow("stalled stream was not cut after the drain timeout")
	}
	req.Equal(0, s.bus.Topics())
}

func TestChatServer_MessageAdded_Rejected(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob, mallory := s.client(t, "alice"), s.client(t, "bob"), s.client(t, "mallory")
	room, err := alice.GetOrCreateRoom(context.Background(), string(bob.UserID()))
	req.NoError(err)

	stream, err := mallory.Subscribe(context.Background(), room.ID)
	req.NoError(err)
	_, err = stream.Recv()
	req.Equal(codes.Unauthenticated, code(err))
	req.Equal(0, s.bus.Topics())
}

func TestChatServer_SearchMessages(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	alice, bob := s.client(t, "alice"), s.client(t, "bob")
	room, err := alice.GetOrCreateRoom(ctx, string(bob.UserID()))
	req.NoError(err)

	// Given two messages indexed by the fan-out worker
	stored, err := alice.StoreMessage(ctx, room.ID, "the quick brown fox")
	req.NoError(err)
	_, err = bob.StoreMessage(ctx, room.ID, "lazy dog")
	req.NoError(err)

	// Then a word search finds the matching message only
	req.Eventually(func() bool {
		found, err := bob.Search(ctx, room.ID, "fox", 10)
		return err == nil && len(found) == 1 && found[0].ID == stored.ID
	}, 2*time.Second, 20*time.Millisecond)

	_, err = bob.Search(ctx, room.ID, "   ", 10)
	req.Equal(codes.InvalidArgument, code(err))
}
