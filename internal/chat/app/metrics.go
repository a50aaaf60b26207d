package app

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics prometheus collectors of the chat service
type Metrics struct {
	ConnectedClients prometheus.Gauge
	EventsEmitted    *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	MessagesSent     prometheus.Counter
	MessagesSeen     prometheus.Counter
	MessagesDeleted  prometheus.Counter
}

// NewMetrics create and register the collectors on reg; nil reg means unregistered (tests)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quickchat_connected_clients",
			Help: "Realtime connections attached to this instance.",
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickchat_events_emitted_total",
			Help: "Realtime events emitted to a single member.",
		}, []string{"event", "delivered"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickchat_events_dropped_total",
			Help: "Realtime events dropped because a send queue was full.",
		}, []string{"event"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickchat_messages_sent_total",
			Help: "Messages persisted.",
		}),
		MessagesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickchat_messages_seen_total",
			Help: "Messages newly marked seen.",
		}),
		MessagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickchat_messages_deleted_total",
			Help: "Messages deleted for everyone.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedClients,
			m.EventsEmitted,
			m.EventsDropped,
			m.MessagesSent,
			m.MessagesSeen,
			m.MessagesDeleted,
		)
	}
	return m
}

func (m *Metrics) emitted(event string, delivered bool) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(event, strconv.FormatBool(delivered)).Inc()
}

func (m *Metrics) dropped(event string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) connected(n int) {
	if m == nil {
		return
	}
	m.ConnectedClients.Set(float64(n))
}

func (m *Metrics) addSent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

func (m *Metrics) addSeen(n int64) {
	if m != nil && n > 0 {
		m.MessagesSeen.Add(float64(n))
	}
}

func (m *Metrics) addDeleted() {
	if m != nil {
		m.MessagesDeleted.Inc()
	}
}
