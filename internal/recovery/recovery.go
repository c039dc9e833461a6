// Package recovery implements the Interrupted-Update Detector: a
// startup scan for repository records whose updateInProgress flag
// survived a crash, plus the two remediation operations a caller may
// choose to apply.
package recovery

import (
	"fmt"
	"time"

	"github.com/repoindexer/repoindexer/internal/catalog"
)

// InterruptedUpdateInfo describes one repository whose previous update
// never reached its finally-clear step.
type InterruptedUpdateInfo struct {
	RepositoryName  string
	UpdateStartedAt time.Time
	ElapsedMs       int64
	Status          catalog.Status
	LastKnownCommit string
}

// Detector scans the catalog for interrupted updates. It never mutates
// state itself — a caller chooses a remediation.
type Detector struct {
	Catalog *catalog.Store
}

// Scan returns one InterruptedUpdateInfo per record with
// updateInProgress=true, as of now.
func (d *Detector) Scan(now time.Time) ([]InterruptedUpdateInfo, error) {
	records, err := d.Catalog.List()
	if err != nil {
		return nil, fmt.Errorf("recovery: scan: %w", err)
	}
	var found []InterruptedUpdateInfo
	for _, rec := range records {
		if !rec.UpdateInProgress {
			continue
		}
		startedAt := time.Time{}
		if rec.UpdateStartedAt != nil {
			startedAt = *rec.UpdateStartedAt
		}
		found = append(found, InterruptedUpdateInfo{
			RepositoryName:  rec.Name,
			UpdateStartedAt: startedAt,
			ElapsedMs:       now.Sub(startedAt).Milliseconds(),
			Status:          rec.Status,
			LastKnownCommit: rec.LastIndexedCommitSha,
		})
	}
	return found, nil
}

// ClearFlag resets updateInProgress/updateStartedAt, leaving every
// other field untouched.
func (d *Detector) ClearFlag(name string) (catalog.Record, error) {
	return d.Catalog.Mutate(name, func(r *catalog.Record) error {
		r.UpdateInProgress = false
		r.UpdateStartedAt = nil
		return nil
	})
}

// MarkAsInterrupted does everything ClearFlag does plus sets
// status=error with a message instructing a forced re-index.
func (d *Detector) MarkAsInterrupted(name string) (catalog.Record, error) {
	return d.Catalog.Mutate(name, func(r *catalog.Record) error {
		r.UpdateInProgress = false
		r.UpdateStartedAt = nil
		r.Status = catalog.StatusError
		r.ErrorMessage = "update was interrupted by a crash; run a forced re-index"
		return nil
	})
}
