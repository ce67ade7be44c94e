// Package session implements the lifecycle of one live subscription:
// Connecting -> Active -> Draining -> Closed.
package session

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type State int32

const (
	Connecting State = iota
	Active
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Active:
		return "ACTIVE"
	case Draining:
		return "DRAINING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Config struct {
	BufferSize   int
	DrainTimeout time.Duration
}

// Authenticator resolves the identity carried by the socket.
type Authenticator func(ctx context.Context) (domain.UserID, error)

// Authorizer checks that the user may read the room.
type Authorizer func(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error

// Session is a bus subscriber backed by a bounded buffer. The bus writes to
// the buffer, the socket task drains it through Serve.
// Offer never takes a lock: the bus calls it while holding its topic lock.
type Session struct {
	id      string
	roomID  domain.RoomID
	userID  domain.UserID
	cfg     Config
	log     *slog.Logger
	metrics *observability.Metrics

	state    atomic.Int32
	events   chan event.DomainEvent
	draining chan struct{}
	done     chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	reason      error
	drainOnce   sync.Once
	closeOnce   sync.Once
}

func New(log *slog.Logger, metrics *observability.Metrics, roomID domain.RoomID, cfg Config) *Session {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	id := uuid.NewString()
	metrics.AddSessions(1)
	return &Session{
		id:       id,
		roomID:   roomID,
		cfg:      cfg,
		log:      log.With("session_id", id, "room_id", roomID),
		metrics:  metrics,
		events:   make(chan event.DomainEvent, cfg.BufferSize),
		draining: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) RoomID() domain.RoomID { return s.roomID }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

// UserID is only meaningful once the session left Connecting.
func (s *Session) UserID() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Err returns why the session closed; nil for a normal close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Open authenticates, authorizes and attaches the session to the bus.
// Any failure closes the session with that error and nothing is delivered.
func (s *Session) Open(ctx context.Context, authenticate Authenticator,
	authorize Authorizer, bus contract.IEventBus) error {
	if s.State() != Connecting {
		return errors.ErrSessionClosed
	}
	userID, err := authenticate(ctx)
	if err != nil {
		s.Close(err)
		return err
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	if err = authorize(ctx, userID, s.roomID); err != nil {
		s.Close(err)
		return err
	}
	return s.activate(bus)
}

func (s *Session) activate(bus contract.IEventBus) error {
	if !s.state.CompareAndSwap(int32(Connecting), int32(Active)) {
		return errors.ErrSessionClosed
	}
	unsubscribe := bus.Subscribe(s.roomID, s)

	s.mu.Lock()
	closed := s.State() == Closed
	if !closed {
		s.unsubscribe = unsubscribe
	}
	s.mu.Unlock()

	// Closed while subscribing: Close could not see the handle.
	if closed {
		unsubscribe()
		return errors.ErrSessionClosed
	}
	s.log.Debug("Session active", "user_id", s.UserID())
	return nil
}

// Offer enqueues without blocking. Events offered outside Active are
// silently discarded: the session is already leaving the topic.
func (s *Session) Offer(e event.DomainEvent) bool {
	if s.State() != Active {
		return true
	}
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Drain is called by the bus after detaching the session for backpressure.
// Queued events get DrainTimeout to be flushed, then the session closes.
func (s *Session) Drain() {
	if !s.state.CompareAndSwap(int32(Active), int32(Draining)) {
		return
	}
	s.drainOnce.Do(func() {
		s.log.Warn("Session draining", "queued", len(s.events))
		close(s.draining)
		time.AfterFunc(s.cfg.DrainTimeout, func() { s.Close(errors.ErrBackpressure) })
	})
}

// Close is terminal and idempotent. The first reason wins.
func (s *Session) Close(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(Closed))
		s.reason = reason
		unsubscribe := s.unsubscribe
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		close(s.done)
		s.metrics.AddSessions(-1)
		if reason != nil && !errors.Is(reason, errors.ErrUnauthorized) {
			s.log.Info("Session closed", "reason", reason)
		} else {
			s.log.Debug("Session closed", "reason", reason)
		}
	})
}

// Serve forwards queued events to deliver until the session closes or ctx is
// canceled. A deliver error closes the session. It returns the close reason.
// The context handed to deliver is canceled as soon as the session closes.
func (s *Session) Serve(ctx context.Context, deliver func(ctx context.Context, e event.DomainEvent) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.Close(nil)
			return s.Err()
		case <-s.done:
			return s.Err()
		case <-s.draining:
			s.flush(ctx, deliver)
			s.Close(errors.ErrBackpressure)
			return s.Err()
		case e := <-s.events:
			if err := deliver(ctx, e); err != nil {
				s.metrics.IncSubscriberDropped("delivery")
				s.Close(fmt.Errorf("%w: deliver: %v", errors.ErrInternal, err))
				return s.Err()
			}
		}
	}
}

// flush delivers what is left in the buffer within the drain timeout.
func (s *Session) flush(ctx context.Context, deliver func(ctx context.Context, e event.DomainEvent) error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()
	for {
		select {
		case e := <-s.events:
			if err := deliver(ctx, e); err != nil {
				s.log.Warn("Flush interrupted", "error", err)
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
			return
		}
	}
}
