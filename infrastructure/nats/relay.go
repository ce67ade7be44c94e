// Package nats relays stored messages between the nodes of a cluster, so a
// session receives messages sent through any node.
package nats

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/storage"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gonats "github.com/nats-io/nats.go"
)

const (
	subjectPrefix = "chat.rooms."
	// OriginHeader carries the node that stored the message.
	OriginHeader = "Chat-Origin"
)

// Conn is the part of *nats.Conn the relay needs.
type Conn interface {
	PublishMsg(msg *gonats.Msg) error
	Subscribe(subject string, cb gonats.MsgHandler) (*gonats.Subscription, error)
}

// Deliverer hands an event to the live subscribers of this node only.
type Deliverer interface {
	Deliver(ctx context.Context, e event.DomainEvent) int
}

// Relay is both a permanent sink (outbound) and a worker (inbound).
// Messages coming back from this node are ignored; messages from other nodes
// go to local subscribers without reaching the permanent sinks again.
type Relay struct {
	log     *slog.Logger
	metrics *observability.Metrics
	conn    Conn
	nodeID  string
	bus     Deliverer
}

func NewRelay(log *slog.Logger, metrics *observability.Metrics, conn Conn, nodeID string, bus Deliverer) *Relay {
	return &Relay{
		log:     log.With("node_id", nodeID),
		metrics: metrics,
		conn:    conn,
		nodeID:  nodeID,
		bus:     bus,
	}
}

func Subject(roomID domain.RoomID) string {
	return subjectPrefix + string(roomID)
}

func (r *Relay) Name() string { return "nats_relay" }

// Consume publishes a locally stored message to the cluster.
func (r *Relay) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageAdded)
	if !ok {
		return nil
	}
	msg := gonats.NewMsg(Subject(evt.Message.RoomID))
	msg.Header.Set(OriginHeader, r.nodeID)
	msg.Data = storage.MarshalMessage(evt.Message)
	if err := r.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("relay message %s: %w", evt.Message.ID, err)
	}
	r.metrics.IncCluster("out")
	return nil
}

// Run subscribes to every room subject until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.conn.Subscribe(subjectPrefix+">", func(msg *gonats.Msg) {
		r.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s>: %w", subjectPrefix, err)
	}
	r.log.Info("Cluster relay started")

	<-ctx.Done()
	if err = sub.Unsubscribe(); err != nil {
		r.log.Debug("Unsubscribe failed", "error", err)
	}
	return nil
}

func (r *Relay) handle(ctx context.Context, msg *gonats.Msg) {
	if msg.Header.Get(OriginHeader) == r.nodeID {
		return
	}
	message, err := storage.UnmarshalMessage(msg.Data)
	if err != nil {
		r.log.Warn("Dropping malformed cluster message", "subject", msg.Subject, "error", err)
		return
	}
	if roomID := strings.TrimPrefix(msg.Subject, subjectPrefix); roomID != string(message.RoomID) {
		r.log.Warn("Dropping cluster message on the wrong subject", "subject", msg.Subject, "room_id", message.RoomID)
		return
	}
	r.metrics.IncCluster("in")
	r.bus.Deliver(ctx, event.MessageAdded{Message: message})
}

// Connect dials the NATS server with reconnection enabled forever.
func Connect(url, name string, log *slog.Logger) (*gonats.Conn, error) {
	return gonats.Connect(url,
		gonats.Name(name),
		gonats.MaxReconnects(-1),
		gonats.ReconnectWait(2*time.Second),
		gonats.DisconnectErrHandler(func(_ *gonats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		gonats.ReconnectHandler(func(c *gonats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		gonats.ErrorHandler(func(_ *gonats.Conn, _ *gonats.Subscription, err error) {
			log.Error("NATS error", "error", err)
		}),
	)
}
