package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	boom := errors.New("boom")

	require.NoError(t, m.Track("catalog:import").End(nil))
	require.ErrorIs(t, m.Track("catalog:import").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:import", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:import", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("catalog:import")))
	require.Greater(t, testutil.ToFloat64(m.lastOK.WithLabelValues("catalog:import")), 0.0)
	require.Zero(t, testutil.ToFloat64(m.lastOK.WithLabelValues("idempotency:cleanup")))
}

func TestAddImported(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddImported("created", 3)
	m.AddImported("created", 0)
	require.Equal(t, 3.0, testutil.ToFloat64(m.imported.WithLabelValues("created")))

	var nilMetrics *Metrics
	nilMetrics.AddImported("created", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
