package infra

import (
	"net/http"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. All methods are safe
// on a nil receiver so components can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	notifications    *prometheus.CounterVec
	finalizations    prometheus.Counter
	effects          *prometheus.CounterVec
	hubDuration      *prometheus.HistogramVec
	directoryLookups *prometheus.CounterVec
	messages         *prometheus.CounterVec
	fanoutsInFlight  prometheus.Gauge
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_notifications_total",
			Help: "External settlement notifications by result.",
		}, []string{"result"}), // recorded | duplicate | rejected:<kind>
		finalizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_finalizations_total",
			Help: "Settlements that reached quorum, including re-runs.",
		}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_advisory_effects_total",
			Help: "Best-effort side effects by name and outcome.",
		}, []string{"effect", "outcome"}),
		hubDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_hub_request_duration_seconds",
			Help:    "Hub API call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		directoryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_directory_lookups_total",
			Help: "Directory lookups by kind and result.",
		}, []string{"lookup", "result"}), // hit | miss | error
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_stakeholder_messages_total",
			Help: "Stakeholder messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		fanoutsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "settlement_fanouts_in_flight",
			Help: "Stakeholder fan-outs currently running.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.notifications, m.finalizations, m.effects, m.hubDuration,
		m.directoryLookups, m.messages, m.fanoutsInFlight,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordNotification counts an accepted notification.
func (m *Metrics) RecordNotification(duplicate bool) {
	if m == nil {
		return
	}
	if duplicate {
		m.notifications.WithLabelValues("duplicate").Inc()
		return
	}
	m.notifications.WithLabelValues("recorded").Inc()
}

// RecordRejection counts a notification rejected with the given kind.
func (m *Metrics) RecordRejection(kind domain.ErrorKind) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues("rejected:" + string(kind)).Inc()
}

// RecordFinalization counts a quorum finalization.
func (m *Metrics) RecordFinalization() {
	if m == nil {
		return
	}
	m.finalizations.Inc()
}

// RecordEffect counts an advisory effect outcome.
func (m *Metrics) RecordEffect(e domain.Effect) {
	if m == nil {
		return
	}
	m.effects.WithLabelValues(e.Name, outcome(e.OK)).Inc()
}

// ObserveHubCall records the latency of a hub request.
func (m *Metrics) ObserveHubCall(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.hubDuration.WithLabelValues(op, outcome(err == nil)).Observe(elapsed.Seconds())
}

// RecordDirectoryLookup counts a directory lookup result.
func (m *Metrics) RecordDirectoryLookup(lookup, result string) {
	if m == nil {
		return
	}
	m.directoryLookups.WithLabelValues(lookup, result).Inc()
}

// RecordMessage counts a stakeholder message delivery attempt.
func (m *Metrics) RecordMessage(kind domain.MessageKind, err error) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(string(kind), outcome(err == nil)).Inc()
}

// FanoutStarted increments the in-flight fan-out gauge.
func (m *Metrics) FanoutStarted() {
	if m == nil {
		return
	}
	m.fanoutsInFlight.Inc()
}

// FanoutFinished decrements the in-flight fan-out gauge.
func (m *Metrics) FanoutFinished() {
	if m == nil {
		return
	}
	m.fanoutsInFlight.Dec()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
