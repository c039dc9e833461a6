// Package stats computes the Metrics Aggregator: a pure function over
// the union of repositories' update history, independent of the
// Prometheus surface in internal/observability.
package stats

import (
	"time"

	"github.com/repoindexer/repoindexer/internal/catalog"
)

// Metrics is the all-time aggregate over every repository's update
// history.
type Metrics struct {
	TotalUpdates        int
	AverageDurationMs    float64
	TotalFilesProcessed int
	TotalChunksModified int
	SuccessRate         float64
	ErrorRate           float64
	Trend               Trend
}

// Trend is the aggregate restricted to a trailing time window.
type Trend struct {
	UpdateCount       int
	FilesProcessed    int
	ChunksModified    int
	AverageDurationMs float64
	ErrorRate         float64
}

// DefaultWindow is the trend window applied when Aggregate is called
// without an explicit one (spec.md §4.7, "default last-7-days").
const DefaultWindow = 7 * 24 * time.Hour

// Aggregate computes Metrics over every entry in every record's
// UpdateHistory, with Trend restricted to entries whose Timestamp is
// within window of now. Empty input yields an all-zero Metrics.
func Aggregate(records []catalog.Record, now time.Time, window time.Duration) Metrics {
	if window <= 0 {
		window = DefaultWindow
	}
	cutoff := now.Add(-window)

	var m Metrics
	var totalDurationMs int64
	var successCount, partialPlusFailedCount int

	var trendDurationMs int64

	for _, rec := range records {
		for _, entry := range rec.UpdateHistory {
			m.TotalUpdates++
			totalDurationMs += entry.DurationMs
			m.TotalFilesProcessed += entry.FilesAdded + entry.FilesModified + entry.FilesDeleted
			m.TotalChunksModified += entry.ChunksUpserted + entry.ChunksDeleted

			switch entry.Status {
			case catalog.UpdateSuccess:
				successCount++
			case catalog.UpdatePartial, catalog.UpdateFailed:
				partialPlusFailedCount++
			}

			if !entry.Timestamp.Before(cutoff) {
				m.Trend.UpdateCount++
				m.Trend.FilesProcessed += entry.FilesAdded + entry.FilesModified + entry.FilesDeleted
				m.Trend.ChunksModified += entry.ChunksUpserted + entry.ChunksDeleted
				trendDurationMs += entry.DurationMs
				if entry.Status != catalog.UpdateSuccess {
					m.Trend.ErrorRate++ // temporarily a count, normalized below
				}
			}
		}
	}

	if m.TotalUpdates > 0 {
		m.AverageDurationMs = float64(totalDurationMs) / float64(m.TotalUpdates)
		m.SuccessRate = float64(successCount) / float64(m.TotalUpdates)
		m.ErrorRate = float64(partialPlusFailedCount) / float64(m.TotalUpdates)
	}
	if m.Trend.UpdateCount > 0 {
		m.Trend.AverageDurationMs = float64(trendDurationMs) / float64(m.Trend.UpdateCount)
		m.Trend.ErrorRate = m.Trend.ErrorRate / float64(m.Trend.UpdateCount)
	}

	return m
}
