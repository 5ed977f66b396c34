package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementAppended("DECLARE", "Accepted")
	m.IncrementAppended("DECLARE", "Accepted")
	m.IncrementReplay()
	m.IncrementRefused("REGISTER", "conflict")
	m.ObserveWebhook("REGISTER", "pending", 20*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ActionsAppended.WithLabelValues("DECLARE", "Accepted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IdempotentReplays), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ActionsRefused.WithLabelValues("REGISTER", "conflict")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.WebhookOutcome.WithLabelValues("REGISTER", "pending")), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementAppended("CREATE", "Accepted")
		m.ObserveWebhook("REGISTER", "failed", time.Second)
		m.ObserveAppendLatency(time.Second)
		m.IncrementDraftsSaved()
	})
}
