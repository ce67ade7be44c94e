package http

import (
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"chat-relay/session"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// closeGrace bounds the close frame sent to a peer that stopped reading.
	closeGrace = 250 * time.Millisecond
	// Close codes in the private range mirror the HTTP statuses.
	closeUnauthorized   = 4401
	closeNotFound       = 4404
	closeInvalidPayload = 4400
)

// SocketHandler serves the messageAdded subscription over a WebSocket.
// Each connection is one session: the socket task drains its buffer and the
// socket is closed as soon as the session is.
type SocketHandler struct {
	log       *slog.Logger
	chat      services.IChatService
	tokens    *auth.TokenManager
	upgrader  websocket.Upgrader
	pingEvery time.Duration
	// Canceled on server shutdown: hijacked connections outlive http.Server.Shutdown.
	root context.Context
}

func NewSocketHandler(root context.Context, log *slog.Logger, chat services.IChatService,
	tokens *auth.TokenManager, pingEvery time.Duration) *SocketHandler {
	return &SocketHandler{
		log:    log,
		chat:   chat,
		tokens: tokens,
		root:   root,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: pingEvery,
	}
}

// GET /ws/rooms/{roomID}?access_token=...
func (s *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.root, cancel)
	defer stop()

	authenticate := func(context.Context) (domain.UserID, error) {
		claims, err := s.tokens.FromRequest(r)
		if err != nil {
			return "", err
		}
		return domain.UserID(claims.UserID), nil
	}
	sess, err := s.chat.Subscribe(ctx, authenticate, roomID)
	if err != nil {
		s.closeWith(conn, err, time.Now().Add(writeWait))
		return
	}

	go s.readLoop(conn, cancel)
	go s.pingLoop(ctx, conn)
	go s.cutOnBackpressure(ctx, conn, sess)

	var writeMu sync.Mutex
	err = sess.Serve(ctx, func(ctx context.Context, e event.DomainEvent) error {
		evt, ok := e.(event.MessageAdded)
		if !ok {
			return nil
		}
		message := api.FromMessage(evt.Message)
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(writeDeadline(ctx))
		return conn.WriteJSON(api.Frame{Type: api.FrameMessageAdded, Message: &message})
	})
	if err != nil && errors.Kind(err) == errors.ClassInternal && !errors.Is(err, errors.ErrBackpressure) {
		s.log.Warn("Subscription delivery failed", "room_id", roomID, "error", err)
	}
	s.closeWith(conn, err, time.Now().Add(writeWait))
}

// cutOnBackpressure closes the socket as soon as the session gives up on a
// slow peer. A write parked on a full TCP window only returns once the
// connection is closed.
func (s *SocketHandler) cutOnBackpressure(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	select {
	case <-sess.Done():
		if reason := sess.Err(); errors.Is(reason, errors.ErrBackpressure) {
			s.closeWith(conn, reason, time.Now().Add(closeGrace))
			_ = conn.Close()
		}
	case <-ctx.Done():
	}
}

// writeDeadline is writeWait from now, or earlier when ctx ends first
// (the drain timeout while flushing).
func writeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// readLoop only watches for the peer going away: clients never send frames.
func (s *SocketHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *SocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// closeWith sends the close reason; WriteControl is safe next to other writers.
func (s *SocketHandler) closeWith(conn *websocket.Conn, reason error, deadline time.Time) {
	code, text := websocket.CloseNormalClosure, ""
	if reason != nil {
		text = errors.PublicMessage(reason)
		switch {
		case errors.Is(reason, errors.ErrBackpressure):
			code, text = websocket.CloseTryAgainLater, reason.Error()
		case errors.Kind(reason) == errors.ClassUnauthorized:
			code = closeUnauthorized
		case errors.Kind(reason) == errors.ClassNotFound:
			code = closeNotFound
		case errors.Kind(reason) == errors.ClassInvalidPayload:
			code = closeInvalidPayload
		default:
			code = websocket.CloseInternalServerErr
		}
	}
	payload := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, payload, deadline)
}
