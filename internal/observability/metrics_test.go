package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetricsCollector(t *testing.T) (*MetricsCollector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry("test", registry)
	return collector, registry
}

func TestRecordIngestionPhase(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordIngestionPhase("scanning", 250*time.Millisecond)
	var m dto.Metric
	require.NoError(t, collector.IngestionDuration.WithLabelValues("scanning").(prometheus.Histogram).Write(&m))
	assert.Equal(t, float64(0.25), m.GetHistogram().GetSampleSum())
}

func TestRecordIngestionOutcome(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordIngestionOutcome(12, 48, 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.IngestionOperations))
	assert.Equal(t, float64(12), testutil.ToFloat64(collector.IngestionFilesTotal))
	assert.Equal(t, float64(48), testutil.ToFloat64(collector.IngestionChunks))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.IngestionErrors.WithLabelValues("per_file")))
}

func TestRecordIngestionOutcome_NoErrorsLeavesCounterUnset(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordIngestionOutcome(5, 10, 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.IngestionErrors.WithLabelValues("per_file")))
}

func TestRecordCoordinatorOutcome(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordCoordinatorOutcome("success", 1500*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.CoordinatorTransitions.WithLabelValues("success")))
	var m dto.Metric
	require.NoError(t, collector.CoordinatorDuration.WithLabelValues("success").(prometheus.Histogram).Write(&m))
	assert.Equal(t, float64(1.5), m.GetHistogram().GetSampleSum())
}

func TestRecordFileDeltas(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.RecordFileDeltas(3, 5, 1)

	assert.Equal(t, float64(3), testutil.ToFloat64(collector.FilesAdded))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.FilesModified))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.FilesDeleted))
}

func TestSetInterruptedRepositories(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.SetInterruptedRepositories(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.InterruptedRepositories))
}

func TestCatalogCounters(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	collector.CatalogReads.Inc()
	collector.CatalogReads.Inc()
	collector.CatalogWrites.Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.CatalogReads))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.CatalogWrites))
}

func TestSetSystemStartTime(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	startTime := time.Unix(1700000000, 0)
	collector.SetSystemStartTime(startTime)

	value := testutil.ToFloat64(collector.SystemStartTime)
	assert.Equal(t, float64(startTime.Unix()), value)
}

func TestSetComponentHealth(t *testing.T) {
	collector, _ := newTestMetricsCollector(t)

	tests := []struct {
		name      string
		component string
		healthy   bool
		wantValue float64
	}{
		{name: "healthy component", component: "forge", healthy: true, wantValue: 1.0},
		{name: "unhealthy component", component: "vectorstore", healthy: false, wantValue: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector.SetComponentHealth(tt.component, tt.healthy)
			value := testutil.ToFloat64(collector.SystemHealth.WithLabelValues(tt.component))
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestNewMetricsCollector_DefaultsNamespace(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry("", registry)
	collector.IngestionOperations.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.IngestionOperations))
}
