package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics tracks realtime alert delivery.
type NotificationMetrics struct {
	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	connections prometheus.Gauge
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "published_total",
		Help:      "Notifications handed to the broker, by event.",
	}, []string{"event"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "delivered_total",
		Help:      "Notifications written to websocket clients, by event.",
	}, []string{"event"})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "connections",
		Help:      "Open websocket connections on this instance.",
	})
	reg.MustRegister(published, delivered, connections)
	return &NotificationMetrics{published: published, delivered: delivered, connections: connections}
}

func (m *NotificationMetrics) IncPublished(event string, n int) {
	if m == nil || m.published == nil || n <= 0 {
		return
	}
	m.published.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

func (m *NotificationMetrics) IncDelivered(event string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *NotificationMetrics) ConnectionOpened() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

func (m *NotificationMetrics) ConnectionClosed() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}
