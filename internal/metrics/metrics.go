package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration outcomes
const (
	OutcomeAdmitted  = "admitted"
	OutcomeFull      = "capacity_exceeded"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "event_not_found"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Metrics holds the Prometheus collectors of the registration service
type Metrics struct {
	RegistrationAttempts *prometheus.CounterVec
	Cancellations        *prometheus.CounterVec
	AdmissionDuration    prometheus.Histogram
	OutboxPublished      *prometheus.CounterVec
	OutboxPending        prometheus.Gauge
	EventCache           *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	initOnce       sync.Once
)

// New creates and registers all metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_attempts_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		Cancellations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_cancellations_total",
			Help: "Cancellation requests by outcome",
		}, []string{"outcome"}),
		AdmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registration_admission_duration_seconds",
			Help:    "Time spent in the atomic admission step",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		OutboxPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_messages_total",
			Help: "Outbox messages relayed to Kafka by result",
		}, []string{"result"}),
		OutboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_messages",
			Help: "Outbox messages waiting to be published",
		}),
		EventCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "event_cache_requests_total",
			Help: "Event cache lookups by result",
		}, []string{"result"}),
	}
}

// Init registers the metrics on the default Prometheus registry once
func Init() *Metrics {
	initOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewNop returns metrics bound to a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordRegistration counts one registration attempt
func (m *Metrics) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.RegistrationAttempts.WithLabelValues(outcome).Inc()
}

// RecordCancellation counts one cancellation attempt
func (m *Metrics) RecordCancellation(outcome string) {
	if m == nil {
		return
	}
	m.Cancellations.WithLabelValues(outcome).Inc()
}

// ObserveAdmission records how long admission took since start
func (m *Metrics) ObserveAdmission(start time.Time) {
	if m == nil {
		return
	}
	m.AdmissionDuration.Observe(time.Since(start).Seconds())
}

// RecordOutbox counts relayed outbox messages
func (m *Metrics) RecordOutbox(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxPublished.WithLabelValues(result).Add(float64(n))
}

// SetOutboxPending sets the outbox queue depth
func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// RecordCacheHit counts an event cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.EventCache.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts an event cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.EventCache.WithLabelValues("miss").Inc()
}
