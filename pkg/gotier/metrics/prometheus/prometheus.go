package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

// Metrics implements gotier.Metrics using Prometheus.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	resolutionsTotal   *prometheus.CounterVec
	tierChangesTotal   *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
	storageOpsErrors   *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_events_total",
			Help:      "Total number of reconciliation events by kind and outcome.",
		}, []string{"kind", "outcome"}),

		resolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_resolutions_total",
			Help:      "Total number of user resolutions by result.",
		}, []string{"result"}),

		tierChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_level_changes_total",
			Help:      "Total number of access level transitions.",
		}, []string{"from", "to"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of identity store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of identity store errors.",
		}, []string{"operation"}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests denied by a rate limiter.",
		}, []string{"scope"}),
	}
}

func (m *Metrics) RecordEvent(kind gotier.EventKind, outcome string) {
	m.eventsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) RecordResolution(kind gotier.ResolutionKind) {
	m.resolutionsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RecordTierChange(from, to gotier.AccessLevel) {
	m.tierChangesTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecordStorageOperation ignores not-found results; they are normal lookups, not failures.
func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil && !isNotFound(err) {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordRateLimited(scope string) {
	m.rateLimitedTotal.WithLabelValues(scope).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
