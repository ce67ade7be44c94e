// Package observability exposes the relay's Prometheus metrics.
// A nil *Metrics is valid and records nothing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "chat_relay"

type Metrics struct {
	MessagesStored     prometheus.Counter
	EventsPublished    prometheus.Counter
	EventsDelivered    prometheus.Counter
	SubscribersDropped *prometheus.CounterVec
	SinkEventsDropped  prometheus.Counter
	SinkErrors         *prometheus.CounterVec
	ClusterEvents      *prometheus.CounterVec
	ActiveTopics       prometheus.Gauge
	ActiveSessions     prometheus.Gauge
	ProcessRSS         prometheus.Gauge
	ProcessCPU         prometheus.Gauge
	WorkerRestarts     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "stored_total",
			Help:      "Messages durably appended",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Events published on room topics",
		}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivered_total",
			Help:      "Events enqueued on a subscriber buffer",
		}),
		SubscribersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers disconnected by the server",
		}, []string{"reason"}),
		SinkEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sinks",
			Name:      "events_dropped_total",
			Help:      "Events not handed to permanent sinks because the fan-out buffer was full",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sinks",
			Name:      "errors_total",
			Help:      "Permanent sink failures and timeouts",
		}, []string{"sink"}),
		ClusterEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "events_total",
			Help:      "Events exchanged with other nodes",
		}, []string{"direction"}),
		ActiveTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "active_topics",
			Help:      "Rooms with at least one subscriber",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Subscription sessions not yet closed",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "rss_bytes",
			Help:      "Resident memory of the server process",
		}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the server process",
		}),
		WorkerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "restarts_total",
			Help:      "Supervised workers restarted after an error or a panic",
		}, []string{"worker"}),
	}
}

// Register adds every collector, plus the Go runtime collector, to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.MessagesStored, m.EventsPublished, m.EventsDelivered,
		m.SubscribersDropped, m.SinkEventsDropped, m.SinkErrors, m.ClusterEvents,
		m.ActiveTopics, m.ActiveSessions, m.ProcessRSS, m.ProcessCPU, m.WorkerRestarts,
		collectors.NewGoCollector(),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) IncStored() {
	if m != nil {
		m.MessagesStored.Inc()
	}
}

func (m *Metrics) IncPublished() {
	if m != nil {
		m.EventsPublished.Inc()
	}
}

func (m *Metrics) AddDelivered(n int) {
	if m != nil {
		m.EventsDelivered.Add(float64(n))
	}
}

func (m *Metrics) IncSubscriberDropped(reason string) {
	if m != nil {
		m.SubscribersDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncSinkDropped() {
	if m != nil {
		m.SinkEventsDropped.Inc()
	}
}

func (m *Metrics) IncSinkError(sink string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) IncCluster(direction string) {
	if m != nil {
		m.ClusterEvents.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) SetTopics(n int) {
	if m != nil {
		m.ActiveTopics.Set(float64(n))
	}
}

func (m *Metrics) AddSessions(delta int) {
	if m != nil {
		m.ActiveSessions.Add(float64(delta))
	}
}

func (m *Metrics) SetProcess(rss uint64, cpu float64) {
	if m != nil {
		m.ProcessRSS.Set(float64(rss))
		m.ProcessCPU.Set(cpu)
	}
}

func (m *Metrics) IncRestart(worker string) {
	if m != nil {
		m.WorkerRestarts.WithLabelValues(worker).Inc()
	}
}
