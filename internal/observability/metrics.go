package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds the Prometheus metrics for the indexing
// service, grouped by subsystem the way the teacher's MetricsCollector
// groups MCP/indexer/embedding/search metrics. This is additive to —
// and independent of — the pure-function Metrics Aggregator in
// internal/stats, which never touches Prometheus.
type MetricsCollector struct {
	// Ingestion Pipeline
	IngestionOperations prometheus.Counter
	IngestionDuration   *prometheus.HistogramVec
	IngestionFilesTotal prometheus.Counter
	IngestionChunks     prometheus.Counter
	IngestionErrors     *prometheus.CounterVec

	// Incremental Update Coordinator
	CoordinatorTransitions *prometheus.CounterVec
	CoordinatorDuration    *prometheus.HistogramVec
	FilesAdded             prometheus.Counter
	FilesModified          prometheus.Counter
	FilesDeleted           prometheus.Counter

	// Interrupted-Update Detector / recovery
	InterruptedRepositories prometheus.Gauge

	// Repository Metadata Store
	CatalogReads  prometheus.Counter
	CatalogWrites prometheus.Counter

	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector registers metrics against the default registerer.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry registers metrics against reg, so
// tests can use a scratch registry instead of the process-global one.
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "repoindexer"
	}

	autoCounterVec := func(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labels)
	}
	autoHistogramVec := func(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labels)
	}
	autoGaugeVec := func(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labels)
	}
	autoCounter := func(opts prometheus.CounterOpts) prometheus.Counter {
		return promauto.With(reg).NewCounter(opts)
	}
	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		IngestionOperations: autoCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingestion_operations_total",
			Help: "Total number of ingestion pipeline runs.",
		}),
		IngestionDuration: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ingestion_phase_duration_seconds",
			Help:    "Ingestion pipeline phase duration in seconds.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"phase"}),
		IngestionFilesTotal: autoCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingestion_files_total",
			Help: "Total number of files successfully ingested.",
		}),
		IngestionChunks: autoCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingestion_chunks_total",
			Help: "Total number of chunks stored by the ingestion pipeline.",
		}),
		IngestionErrors: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingestion_errors_total",
			Help: "Total number of per-file/per-batch ingestion errors.",
		}, []string{"kind"}),

		CoordinatorTransitions: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "coordinator_transitions_total",
			Help: "Total number of coordinator state-machine outcomes.",
		}, []string{"outcome"}),
		CoordinatorDuration: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "coordinator_update_duration_seconds",
			Help:    "Incremental update duration in seconds.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300},
		}, []string{"outcome"}),
		FilesAdded:    autoCounter(prometheus.CounterOpts{Namespace: namespace, Name: "files_added_total", Help: "Files added across incremental updates."}),
		FilesModified: autoCounter(prometheus.CounterOpts{Namespace: namespace, Name: "files_modified_total", Help: "Files modified across incremental updates."}),
		FilesDeleted:  autoCounter(prometheus.CounterOpts{Namespace: namespace, Name: "files_deleted_total", Help: "Files deleted across incremental updates."}),

		InterruptedRepositories: autoGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "interrupted_repositories",
			Help: "Number of repositories whose updateInProgress flag survived a crash.",
		}),

		CatalogReads:  autoCounter(prometheus.CounterOpts{Namespace: namespace, Name: "catalog_reads_total", Help: "Total metadata store reads."}),
		CatalogWrites: autoCounter(prometheus.CounterOpts{Namespace: namespace, Name: "catalog_writes_total", Help: "Total metadata store writes."}),

		SystemStartTime: autoGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "system_start_time_seconds", Help: "Unix timestamp when the service started."}),
		SystemHealth: autoGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_health_status",
			Help: "Component health (1 = healthy, 0 = unhealthy).",
		}, []string{"component"}),
	}
}

func (m *MetricsCollector) RecordIngestionPhase(phase string, d time.Duration) {
	m.IngestionDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *MetricsCollector) RecordIngestionOutcome(files, chunks int, errs int) {
	m.IngestionOperations.Inc()
	m.IngestionFilesTotal.Add(float64(files))
	m.IngestionChunks.Add(float64(chunks))
	if errs > 0 {
		m.IngestionErrors.WithLabelValues("per_file").Add(float64(errs))
	}
}

func (m *MetricsCollector) RecordCoordinatorOutcome(outcome string, d time.Duration) {
	m.CoordinatorTransitions.WithLabelValues(outcome).Inc()
	m.CoordinatorDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *MetricsCollector) RecordFileDeltas(added, modified, deleted int) {
	m.FilesAdded.Add(float64(added))
	m.FilesModified.Add(float64(modified))
	m.FilesDeleted.Add(float64(deleted))
}

func (m *MetricsCollector) SetInterruptedRepositories(n int) {
	m.InterruptedRepositories.Set(float64(n))
}

func (m *MetricsCollector) SetSystemStartTime(t time.Time) { m.SystemStartTime.Set(float64(t.Unix())) }

func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(v)
}
