package metrics

import "github.com/prometheus/client_golang/prometheus"

// Profile fetch outcomes.
const (
	FetchSuccess = "success"
	FetchFailure = "failure"
	FetchStale   = "stale"
)

// SessionMetrics counts session store activity in the portal.
type SessionMetrics struct {
	fetches   *prometheus.CounterVec
	mutations *prometheus.CounterVec
	active    prometheus.Gauge
}

// NewSessionMetrics registers the session collectors on reg. A nil registerer
// yields a no-op recorder.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	if reg == nil {
		return &SessionMetrics{}
	}
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "profile_fetch_total",
		Help:      "Profile fetches by outcome.",
	}, []string{"result"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "mutations_total",
		Help:      "Session store mutations by operation.",
	}, []string{"op"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "stores_active",
		Help:      "Session stores currently held in memory.",
	})
	reg.MustRegister(fetches, mutations, active)
	return &SessionMetrics{fetches: fetches, mutations: mutations, active: active}
}

func (m *SessionMetrics) ObserveFetch(result string) {
	if m == nil || m.fetches == nil {
		return
	}
	m.fetches.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *SessionMetrics) ObserveMutation(op string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *SessionMetrics) SetActiveStores(n int) {
	if m == nil || m.active == nil {
		return
	}
	m.active.Set(float64(n))
}
