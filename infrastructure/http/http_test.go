package http_test

import (
	"bytes"
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	httpapi "chat-relay/infrastructure/http"
	"chat-relay/pagination"
	"chat-relay/runtime"
	"chat-relay/services"
	"chat-relay/session"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const password = "ComplexPass123!"

type stack struct {
	server   *httptest.Server
	bus      *runtime.Bus
	listener *stallListener
}

func newStack(t *testing.T) stack {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := storage.NewUserRepository(db, log)
	rooms := storage.NewRoomRepository(db, log)
	messages := storage.NewMessageRepository(db, log)
	bus := runtime.NewBus(log, nil)
	tokens := auth.NewTokenManager("secret", time.Hour)

	chat := services.NewChatService(log, nil, rooms, messages, bus, nil, services.ChatConfig{
		MaxContentLength: 4000,
		Pagination:       pagination.DefaultConfig(),
		Session:          session.Config{BufferSize: 16, DrainTimeout: 100 * time.Millisecond},
	})
	handler := httpapi.NewHandler(log,
		services.NewAuthService(log, users, tokens),
		services.NewRoomService(log, users, rooms, pagination.DefaultConfig()),
		chat)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	socket := httpapi.NewSocketHandler(ctx, log, chat, tokens, time.Second)

	server := httptest.NewUnstartedServer(httpapi.NewRouter(log, handler, socket, tokens, nil))
	listener := &stallListener{Listener: server.Listener, conns: map[string]*stallConn{}}
	server.Listener = listener
	server.Start()
	t.Cleanup(server.Close)
	return stack{server: server, bus: bus, listener: listener}
}

// call sends a JSON request and decodes the JSON answer into out when given.
func (s stack) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s stack) register(t *testing.T, username string) api.AuthResponse {
	t.Helper()
	var res api.AuthResponse
	status := s.call(t, http.MethodPost, "/auth/register", "", api.AuthRequest{Username: username, Password: password}, &res)
	require.Equal(t, http.StatusCreated, status)
	return res
}

func (s stack) openRoom(t *testing.T, as api.AuthResponse, other api.AuthResponse) api.Room {
	t.Helper()
	var room api.Room
	status := s.call(t, http.MethodPost, "/rooms", as.Token, api.GetOrCreateRoomRequest{OtherUserID: other.User.ID}, &room)
	require.Equal(t, http.StatusOK, status)
	return room
}

func (s stack) dial(t *testing.T, roomID, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws/rooms/%s?access_token=%s", strings.TrimPrefix(s.server.URL, "http"), roomID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAuthFlow(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	alice := s.register(t, "alice")
	req.NotEmpty(alice.Token)
	req.Equal("alice", alice.User.Username)

	// Duplicate username
	var failure api.ErrorResponse
	status := s.call(t, http.MethodPost, "/auth/register", "", api.AuthRequest{Username: "alice", Password: password}, &failure)
	req.Equal(http.StatusBadRequest, status)
	req.Equal("INVALID_PAYLOAD", failure.Error.Code)

	var login api.AuthResponse
	req.Equal(http.StatusOK, s.call(t, http.MethodPost, "/auth/login", "", api.AuthRequest{Username: "alice", Password: password}, &login))
	req.Equal(alice.User.ID, login.User.ID)

	req.Equal(http.StatusUnauthorized, s.call(t, http.MethodPost, "/auth/login", "", api.AuthRequest{Username: "alice", Password: "Wrong-password-1"}, nil))

	var me api.User
	req.Equal(http.StatusOK, s.call(t, http.MethodGet, "/me", login.Token, nil, &me))
	req.Equal("alice", me.Username)

	req.Equal(http.StatusUnauthorized, s.call(t, http.MethodGet, "/me", "", nil, nil))
}

func TestRooms_GetOrCreate_IsOrderIndependent(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.register(t, "alice"), s.register(t, "bob")

	fromAlice := s.openRoom(t, alice, bob)
	fromBob := s.openRoom(t, bob, alice)
	req.Equal(fromAlice.ID, fromBob.ID)

	var failure api.ErrorResponse
	status := s.call(t, http.MethodPost, "/rooms", alice.Token, api.GetOrCreateRoomRequest{OtherUserID: "ghost"}, &failure)
	req.Equal(http.StatusBadRequest, status)
	req.Contains(failure.Error.Message, "user not found")

	var rooms api.RoomConnection
	req.Equal(http.StatusOK, s.call(t, http.MethodGet, "/rooms", bob.Token, nil, &rooms))
	req.Len(rooms.Edges, 1)
	req.Equal(fromAlice.ID, rooms.Edges[0].Node.ID)
}

func TestMessages_FirstTwoOfFive(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.register(t, "alice"), s.register(t, "bob")
	room := s.openRoom(t, alice, bob)
	path := "/rooms/" + room.ID + "/messages"

	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		var stored api.Message
		req.Equal(http.StatusCreated, s.call(t, http.MethodPost, path, alice.Token, api.StoreMessageRequest{Content: content}, &stored))
		req.Equal(content, stored.Content)
	}

	var page api.MessageConnection
	req.Equal(http.StatusOK, s.call(t, http.MethodGet, path+"?first=2", bob.Token, nil, &page))
	req.Equal([]string{"m1", "m2"}, lo.Map(page.Nodes(), func(m api.Message, _ int) string { return m.Content }))
	req.True(page.PageInfo.HasNextPage)
	req.False(page.PageInfo.HasPreviousPage)

	var next api.MessageConnection
	req.Equal(http.StatusOK, s.call(t, http.MethodGet, path+"?first=2&after="+*page.PageInfo.EndCursor, bob.Token, nil, &next))
	req.Equal([]string{"m3", "m4"}, lo.Map(next.Nodes(), func(m api.Message, _ int) string { return m.Content }))

	var last api.MessageConnection
	req.Equal(http.StatusOK, s.call(t, http.MethodGet, path+"?last=2", bob.Token, nil, &last))
	req.Equal([]string{"m4", "m5"}, lo.Map(last.Nodes(), func(m api.Message, _ int) string { return m.Content }))
	req.True(last.PageInfo.HasPreviousPage)

	var failure api.ErrorResponse
	req.Equal(http.StatusBadRequest, s.call(t, http.MethodGet, path+"?first=2&last=2", bob.Token, nil, &failure))
	req.Equal(http.StatusBadRequest, s.call(t, http.MethodGet, path+"?after=not-a-cursor", bob.Token, nil, nil))
	req.Equal(http.StatusBadRequest, s.call(t, http.MethodGet, path+"?first=abc", bob.Token, nil, nil))
}

func TestMessages_WhitespaceIsRejected(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.register(t, "alice"), s.register(t, "bob")
	room := s.openRoom(t, alice, bob)
	path := "/rooms/" + room.ID + "/messages"

	var failure api.ErrorResponse
	req.Equal(http.StatusBadRequest, s.call(t, http.MethodPost, path, alice.Token, api.StoreMessageRequest{Content: "   "}, &failure))
	req.Equal("INVALID_PAYLOAD", failure.Error.Code)

	var page api.MessageConnection
	req.Equal(http.StatusOK, s.call(t, http.MethodGet, path, alice.Token, nil, &page))
	req.Empty(page.Edges)
}

func TestMessages_OutsidersAndUnknownRooms(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob, mallory := s.register(t, "alice"), s.register(t, "bob"), s.register(t, "mallory")
	room := s.openRoom(t, alice, bob)

	req.Equal(http.StatusUnauthorized, s.call(t, http.MethodGet, "/rooms/"+room.ID+"/messages", mallory.Token, nil, nil))
	req.Equal(http.StatusNotFound, s.call(t, http.MethodGet, "/rooms/nope/messages", alice.Token, nil, nil))
	req.Equal(http.StatusBadRequest, s.call(t, http.MethodGet, "/rooms/"+room.ID+"/search?q=", alice.Token, nil, nil))
}

func TestSocket_DeliversStoredMessages(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.register(t, "alice"), s.register(t, "bob")
	room := s.openRoom(t, alice, bob)

	// Given bob is subscribed
	conn := s.dial(t, room.ID, bob.Token)
	req.Eventually(func() bool { return s.bus.TopicSize(domainRoom(room)) == 1 }, time.Second, 10*time.Millisecond)

	// When alice sends "hi"
	var stored api.Message
	req.Equal(http.StatusCreated, s.call(t, http.MethodPost, "/rooms/"+room.ID+"/messages", alice.Token, api.StoreMessageRequest{Content: "hi"}, &stored))

	// Then bob receives exactly that message
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame api.Frame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal(api.FrameMessageAdded, frame.Type)
	req.Equal(stored.ID, frame.Message.ID)
	req.Equal("hi", frame.Message.Content)
	req.Equal(alice.User.ID, frame.Message.SenderID)

	// And closing the socket releases the topic
	req.NoError(conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	req.Eventually(func() bool { return s.bus.TopicSize(domainRoom(room)) == 0 }, time.Second, 10*time.Millisecond)
}

func TestSocket_ClosesOnRejectedSubscription(t *testing.T) {
	s := newStack(t)
	alice, bob, mallory := s.register(t, "alice"), s.register(t, "bob"), s.register(t, "mallory")
	room := s.openRoom(t, alice, bob)

	tests := []struct {
		name   string
		roomID string
		token  string
		code   int
	}{
		{"invalid token", room.ID, "garbage", 4401},
		{"not a participant", room.ID, mallory.Token, 4401},
		{"unknown room", "nope", alice.Token, 4404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			conn := s.dial(t, tt.roomID, tt.token)
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

			_, _, err := conn.ReadMessage()

			var closeErr *websocket.CloseError
			req.ErrorAs(err, &closeErr)
			req.Equal(tt.code, closeErr.Code)
			req.Equal(0, s.bus.Topics())
		})
	}
}

func TestSocket_StalledPeerIsCutAfterDrainTimeout(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice, bob := s.register(t, "alice"), s.register(t, "bob")
	room := s.openRoom(t, alice, bob)

	// Given bob is subscribed but his socket stopped accepting bytes
	conn := s.dial(t, room.ID, bob.Token)
	req.Eventually(func() bool { return s.bus.TopicSize(domainRoom(room)) == 1 }, time.Second, 10*time.Millisecond)
	server := s.listener.stall(conn.LocalAddr().String())
	req.NotNil(server)

	// When alice overflows the 16-slot buffer
	for i := 0; i < 20; i++ {
		req.Equal(http.StatusCreated, s.call(t, http.MethodPost, "/rooms/"+room.ID+"/messages", alice.Token,
			api.StoreMessageRequest{Content: fmt.Sprintf("message %d", i)}, nil))
	}

	// Then the server closes the connection after the drain timeout,
	// well before its 5s write deadline would fire
	select {
	case <-server.closed:
	case <-time.After(time.Second):
		req.FailNow("stalled socket outlived the drain timeout")
	}
	req.Equal(0, s.bus.Topics())

	// And bob's next read sees the connection gone
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	req.Error(err)
}

// stallListener hands out connections whose writes can be frozen, the way a
// peer that stops reading eventually fills the TCP window.
type stallListener struct {
	net.Listener
	mu    sync.Mutex
	conns map[string]*stallConn
}

func (l *stallListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	sc := &stallConn{Conn: c, closed: make(chan struct{})}
	l.mu.Lock()
	l.conns[c.RemoteAddr().String()] = sc
	l.mu.Unlock()
	return sc, nil
}

// stall freezes the server side of the connection whose client address is remote.
func (l *stallListener) stall(remote string) *stallConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.conns[remote]
	if !ok {
		return nil
	}
	c.stalled.Store(true)
	return c
}

type stallConn struct {
	net.Conn
	stalled  atomic.Bool
	mu       sync.Mutex
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
}

func (c *stallConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return c.Conn.SetWriteDeadline(t)
}

func (c *stallConn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return c.Conn.SetDeadline(t)
}

// Write blocks until the write deadline or Close once stalled.
func (c *stallConn) Write(p []byte) (int, error) {
	if !c.stalled.Load() {
		return c.Conn.Write(p)
	}
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()
	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	case <-expired:
		return 0, os.ErrDeadlineExceeded
	}
}

func (c *stallConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

func domainRoom(room api.Room) domain.RoomID {
	return domain.RoomID(room.ID)
}
