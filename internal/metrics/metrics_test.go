package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.BatchesProcessed.WithLabelValues("ok").Inc()
	m.AddressesTotal.WithLabelValues("matched").Add(3)
	m.SearchRequests.WithLabelValues("geocoded").Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.BatchesProcessed.WithLabelValues("ok")), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.AddressesTotal.WithLabelValues("matched")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "votergeo_batches_processed_total")
	assert.Contains(t, names, "votergeo_search_requests_total")
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestNewUnregistered_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewUnregistered()
		NewUnregistered()
	})
}
