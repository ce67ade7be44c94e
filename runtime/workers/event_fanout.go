package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventFanout hands every published event to the permanent sinks
// (search index, cluster relay).
//
// Delivery is best-effort: no retry, no durability. Each sink gets its own
// goroutine and sinkTimeout, so a slow sink cannot hold back the others.
// Live subscribers never go through here; the bus serves them directly.
type EventFanout struct {
	log         *slog.Logger
	metrics     *observability.Metrics
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, metrics *observability.Metrics,
	events <-chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{
		log:         log,
		metrics:     metrics,
		events:      events,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		}
	}
}

// Fanout returns once every sink consumed the event or timed out.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var wg sync.WaitGroup
	for _, sink := range w.sinks {
		wg.Add(1)
		go func(sink contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := sink.Consume(sinkCtx, evt); err != nil {
				name := sinkName(sink)
				w.metrics.IncSinkError(name)
				w.log.Warn("Sink failed to consume event", "sink", name, "room_id", evt.RoomID(), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

func sinkName(sink contract.EventSink) string {
	if named, ok := sink.(contract.Named); ok {
		return named.Name()
	}
	return "unnamed"
}
