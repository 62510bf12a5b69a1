package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported on /metrics. All methods are
// nil-safe so components can be built without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	sessionsCreated   prometheus.Counter
	sessionsDestroyed *prometheus.CounterVec
	sessionsEvicted   prometheus.Counter
	statusTransitions *prometheus.CounterVec
	dispatchJobs      *prometheus.CounterVec
	dispatchMessages  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gowa_sessions_created_total",
			Help: "Sessions for which a messaging client was started.",
		}),
		sessionsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gowa_sessions_destroyed_total",
			Help: "Sessions torn down, by trigger.",
		}, []string{"reason"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gowa_sessions_evicted_total",
			Help: "Sessions evicted to stay under the capacity cap.",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gowa_session_transitions_total",
			Help: "Accepted session status transitions, by target status.",
		}, []string{"status"}),
		dispatchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gowa_dispatch_jobs_total",
			Help: "Bulk dispatch jobs, by final state.",
		}, []string{"state"}),
		dispatchMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gowa_dispatch_messages_total",
			Help: "Per-recipient dispatch attempts, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.sessionsCreated,
		m.sessionsDestroyed,
		m.sessionsEvicted,
		m.statusTransitions,
		m.dispatchJobs,
		m.dispatchMessages,
	)
	return m
}

// RegisterGauge exposes a value computed on scrape, e.g. live session count.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) SessionDestroyed(reason string) {
	if m != nil {
		m.sessionsDestroyed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SessionEvicted() {
	if m != nil {
		m.sessionsEvicted.Inc()
	}
}

func (m *Metrics) StatusTransition(status string) {
	if m != nil {
		m.statusTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) DispatchJob(state string) {
	if m != nil {
		m.dispatchJobs.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) DispatchMessage(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.dispatchMessages.WithLabelValues(result).Inc()
}
