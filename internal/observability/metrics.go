package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is a no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	retries         *prometheus.CounterVec
	outboxDelivered prometheus.Counter
	outboxFailed    prometheus.Counter
	outboxPending   prometheus.Gauge
	outboxPurged    prometheus.Counter
}

// NewMetrics registers collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queue_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_http_errors_total",
			Help: "Error responses by domain error code",
		}, []string{"method", "path", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_transitions_total",
			Help: "Committed lifecycle transitions",
		}, []string{"entity", "event"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_conflict_retries_total",
			Help: "Units of work retried after a concurrency conflict",
		}, []string{"operation"}),
		outboxDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "queue_outbox_delivered_total",
			Help: "Outbox events delivered to every sink",
		}),
		outboxFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "queue_outbox_failed_total",
			Help: "Outbox delivery attempts that failed",
		}),
		outboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "queue_outbox_pending",
			Help: "Outbox events awaiting delivery",
		}),
		outboxPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "queue_outbox_purged_total",
			Help: "Delivered outbox events removed by retention",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordTransition counts a committed state change.
func (m *Metrics) RecordTransition(entity, event string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, event).Inc()
}

// RecordRetry counts a retried unit of work.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// RecordOutbox reports the outcome of one relay pass.
func (m *Metrics) RecordOutbox(delivered, failed, pending int) {
	if m == nil {
		return
	}
	m.outboxDelivered.Add(float64(delivered))
	m.outboxFailed.Add(float64(failed))
	m.outboxPending.Set(float64(pending))
}

// RecordOutboxPurge counts events removed by retention.
func (m *Metrics) RecordOutboxPurge(purged int) {
	if m == nil {
		return
	}
	m.outboxPurged.Add(float64(purged))
}
