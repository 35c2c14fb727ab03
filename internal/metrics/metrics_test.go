package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRegistration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRegistration(OutcomeAdmitted)
	m.RecordRegistration(OutcomeAdmitted)
	m.RecordRegistration(OutcomeFull)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistrationAttempts.WithLabelValues(OutcomeAdmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationAttempts.WithLabelValues(OutcomeFull)))
}

func TestRecordOutbox_IgnoresZero(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordOutbox("published", 0)
	m.RecordOutbox("published", 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxPublished.WithLabelValues("published")))
}

func TestCacheCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventCache.WithLabelValues("miss")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRegistration(OutcomeAdmitted)
	m.RecordCancellation(OutcomeAdmitted)
	m.ObserveAdmission(time.Now())
	m.RecordOutbox("published", 1)
	m.SetOutboxPending(4)
	m.RecordCacheHit()
	m.RecordCacheMiss()
}

func TestInit_ReturnsSameInstance(t *testing.T) {
	assert.Same(t, Init(), Init())
}
