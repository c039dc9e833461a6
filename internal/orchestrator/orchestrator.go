// Package orchestrator exposes the public index/update/remove/status
// API, serializing ingestion globally and fanning progress events out
// to listeners.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repoindexer/repoindexer/internal/catalog"
	"github.com/repoindexer/repoindexer/internal/categorizer"
	"github.com/repoindexer/repoindexer/internal/coordinator"
	"github.com/repoindexer/repoindexer/internal/forge"
	"github.com/repoindexer/repoindexer/internal/gitrepo"
	"github.com/repoindexer/repoindexer/internal/graphstore"
	"github.com/repoindexer/repoindexer/internal/incremental"
	"github.com/repoindexer/repoindexer/internal/ingestion"
	"github.com/repoindexer/repoindexer/internal/observability"
)

// tracer emits the orchestrator's operation-level spans. With no
// global TracerProvider configured (observability.NewTracerProvider
// with Enabled: false, the default), these are no-ops.
var tracer = otel.Tracer("repoindexer/orchestrator")

// ErrIngestionInProgress is the pre-flight error returned when a
// second index/reindex is attempted while one is already running
// (spec.md §5, "at-most-one ingestion globally").
var ErrIngestionInProgress = errors.New("orchestrator: another ingestion is already in progress")

// ErrRemoveWhileIngesting is the pre-flight error returned when
// RemoveRepository targets the repository currently being ingested.
var ErrRemoveWhileIngesting = errors.New("orchestrator: cannot remove the repository currently being ingested")

// Listener receives one event per ingestion-progress tick or update
// lifecycle transition; RemoveRepository emits no events. A panicking listener is
// recovered and logged; it never propagates to the caller.
type Listener func(Event)

// Event is the progress/lifecycle notification fanned out to
// listeners.
type Event struct {
	Repository string
	Phase      string
	Percentage float64
	Details    string
	Timestamp  time.Time
}

// Options configures one index or reindex call.
type Options struct {
	Branch            string
	Force             bool
	IncludeExtensions []string
	ExcludePatterns   []string
}

// Status is the snapshot returned by GetStatus.
type Status struct {
	Ingesting         bool
	CurrentRepository string
	Repositories      []catalog.Record
}

// Orchestrator wires the Ingestion Pipeline, the Incremental Update
// Coordinator, and the Repository Metadata Store behind one public
// API. Every field is a direct dependency, assembled by the caller
// (internal/cli's buildApp, or a test).
type Orchestrator struct {
	Catalog     *catalog.Store
	Ingestion   *ingestion.Pipeline
	Coordinator *coordinator.Coordinator
	Graph       graphstore.Store
	Logger      *observability.Logger
	LocalRoot   string

	FileBatchSize      int
	EmbeddingBatchSize int

	mu          sync.Mutex
	ingesting   bool
	currentRepo string

	listenersMu sync.Mutex
	listeners   []Listener
}

// New assembles an Orchestrator from its component pipelines. It does
// not itself construct those pipelines — callers (internal/cli's buildApp)
// wire the concrete Cloner/Chunker/Embedder/Store/Forge
// implementations and pass the resulting ingestion.Pipeline and
// coordinator.Coordinator in.
func New(store *catalog.Store, ingest *ingestion.Pipeline, coord *coordinator.Coordinator, logger *observability.Logger, localRoot string) *Orchestrator {
	return &Orchestrator{
		Catalog:     store,
		Ingestion:   ingest,
		Coordinator: coord,
		Logger:      logger,
		LocalRoot:   localRoot,
	}
}

// AddListener registers l to receive future events.
func (o *Orchestrator) AddListener(l Listener) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) emit(evt Event) {
	o.listenersMu.Lock()
	ls := append([]Listener(nil), o.listeners...)
	o.listenersMu.Unlock()

	for _, l := range ls {
		func(l Listener) {
			defer func() {
				if r := recover(); r != nil && o.Logger != nil {
					o.Logger.Error("orchestrator: progress listener panicked", "panic", fmt.Sprint(r))
				}
			}()
			l(evt)
		}(l)
	}
}

// beginIngestion acquires the global at-most-one-ingestion lock, or
// returns ErrIngestionInProgress.
func (o *Orchestrator) beginIngestion(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ingesting {
		return ErrIngestionInProgress
	}
	o.ingesting = true
	o.currentRepo = name
	return nil
}

func (o *Orchestrator) endIngestion() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ingesting = false
	o.currentRepo = ""
}

// IndexRepository clones url, runs the Ingestion Pipeline end-to-end,
// and writes one catalog record. force=true overwrites an existing
// record of the same name (this is also how ReindexRepository is
// implemented).
func (o *Orchestrator) IndexRepository(ctx context.Context, url string, opts Options) (catalog.Record, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.index_repository", trace.WithAttributes(
		attribute.String("repository.url", url),
		attribute.Bool("force", opts.Force),
	))
	defer span.End()

	name, err := o.nameFor(url)
	if err != nil {
		span.RecordError(err)
		return catalog.Record{}, err
	}
	span.SetAttributes(attribute.String("repository.name", name))

	if _, err := o.Catalog.Get(name); err == nil && !opts.Force {
		return catalog.Record{}, catalog.ErrAlreadyExists
	} else if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return catalog.Record{}, err
	}

	if err := o.beginIngestion(name); err != nil {
		return catalog.Record{}, err
	}
	defer o.endIngestion()

	localPath := filepath.Join(o.LocalRoot, name)
	start := time.Now()

	result := o.Ingestion.Run(ctx, url, localPath, name, ingestion.Options{
		Repository:      name,
		Branch:          opts.Branch,
		IncludeExt:      opts.IncludeExtensions,
		ExcludePatterns: opts.ExcludePatterns,
		FileBatchSize:   o.FileBatchSize,
		EmbeddingBatch:  o.EmbeddingBatchSize,
		OnProgress: func(p ingestion.Progress) {
			o.emit(Event{Repository: name, Phase: p.Phase, Percentage: p.Percentage, Details: p.Details, Timestamp: p.Timestamp})
		},
	})

	headSHA, _ := gitrepo.HeadCommit(localPath)

	rec := catalog.Record{
		Name:                 name,
		URL:                  url,
		Branch:               opts.Branch,
		LocalPath:            localPath,
		CollectionName:       name,
		FileCount:            result.FileCount,
		ChunkCount:           result.ChunkCount,
		LastIndexedAt:        catalog.Now(),
		LastIndexedCommitSha: headSHA,
		IndexDurationMs:      time.Since(start).Milliseconds(),
		IncludeExtensions:    opts.IncludeExtensions,
		ExcludePatterns:      opts.ExcludePatterns,
	}
	switch result.Outcome {
	case ingestion.OutcomeSuccess:
		rec.Status = catalog.StatusReady
	case ingestion.OutcomePartial:
		rec.Status = catalog.StatusError
		rec.ErrorMessage = fmt.Sprintf("%d file error(s) during ingestion", len(result.Errors))
	default:
		rec.Status = catalog.StatusError
		rec.ErrorMessage = result.ErrorMessage
		span.RecordError(errors.New(result.ErrorMessage))
	}

	if err := o.Catalog.Create(rec, true); err != nil {
		return catalog.Record{}, err
	}
	return rec, nil
}

// ReindexRepository is IndexRepository with force=true.
func (o *Orchestrator) ReindexRepository(ctx context.Context, url string, opts Options) (catalog.Record, error) {
	opts.Force = true
	return o.IndexRepository(ctx, url, opts)
}

// UpdateRepository drives the Incremental Update Coordinator for an
// already-indexed repository. Coordinator pre-flight errors
// (ErrMissingCommitSha, ConcurrentUpdateError, ErrForcePushDetected,
// ErrChangeThresholdExceeded, ErrGitPull, catalog.ErrNotFound) are
// returned to the caller unchanged; pipeline-internal per-file errors
// are folded into the returned Result instead.
func (o *Orchestrator) UpdateRepository(ctx context.Context, name string) (coordinator.Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.update_repository", trace.WithAttributes(
		attribute.String("repository.name", name),
	))
	defer span.End()

	o.emit(Event{Repository: name, Phase: "update_started", Timestamp: time.Now()})
	result, err := o.Coordinator.Update(ctx, name)
	if err != nil {
		span.RecordError(err)
		o.emit(Event{Repository: name, Phase: "update_failed", Details: err.Error(), Timestamp: time.Now()})
		return coordinator.Result{}, err
	}
	span.SetAttributes(attribute.String("update.status", string(result.Status)))
	o.emit(Event{Repository: name, Phase: "update_complete", Percentage: 100, Details: string(result.Status), Timestamp: time.Now()})
	return result, nil
}

// RemoveRepository deletes the vector collection and the metadata
// record, and best-effort removes the local clone directory. It
// refuses to remove the repository currently being ingested.
func (o *Orchestrator) RemoveRepository(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "orchestrator.remove_repository", trace.WithAttributes(
		attribute.String("repository.name", name),
	))
	defer span.End()

	o.mu.Lock()
	if o.ingesting && o.currentRepo == name {
		o.mu.Unlock()
		return ErrRemoveWhileIngesting
	}
	o.mu.Unlock()

	rec, err := o.Catalog.Get(name)
	if err != nil {
		return err
	}

	if o.Ingestion != nil && o.Ingestion.Store != nil {
		if err := o.Ingestion.Store.DeleteCollection(ctx, rec.CollectionName); err != nil {
			return fmt.Errorf("orchestrator: delete collection: %w", err)
		}
	}

	if rec.LocalPath != "" {
		if err := os.RemoveAll(rec.LocalPath); err != nil && o.Logger != nil {
			o.Logger.ErrorContext(ctx, "orchestrator: failed to remove local clone", "repository", name, "error", err.Error())
		}
	}

	if err := o.Catalog.Delete(name); err != nil {
		return fmt.Errorf("orchestrator: delete record: %w", err)
	}
	return nil
}

// GetStatus returns every repository record plus whether an ingestion
// is currently in flight.
func (o *Orchestrator) GetStatus() (Status, error) {
	records, err := o.Catalog.List()
	if err != nil {
		return Status{}, err
	}
	o.mu.Lock()
	st := Status{Ingesting: o.ingesting, CurrentRepository: o.currentRepo, Repositories: records}
	o.mu.Unlock()
	return st, nil
}

// ApplyLocalChange feeds one Change Categorizer detection into the
// same Incremental Update Pipeline an Update uses, per spec.md §4
// ("the Change Categorizer is an alternative source of change lists
// feeding the same Incremental Update Pipeline"). It is the caller's
// responsibility to run the categorizer and forward its output here.
func (o *Orchestrator) ApplyLocalChange(ctx context.Context, name string, dc categorizer.DetectedChange) (incremental.Result, error) {
	rec, err := o.Catalog.Get(name)
	if err != nil {
		return incremental.Result{}, err
	}
	change := incremental.FileChange{
		Path:         dc.RelativePath,
		Status:       incremental.ChangeStatus(dc.Category),
		PreviousPath: dc.PreviousRelativePath,
	}
	return o.Coordinator.Pipeline.Apply(ctx, []incremental.FileChange{change}, incremental.Options{
		Repository:      name,
		LocalPath:       rec.LocalPath,
		CollectionName:  rec.CollectionName,
		IncludeExt:      rec.IncludeExtensions,
		ExcludePatterns: rec.ExcludePatterns,
	}), nil
}

func (o *Orchestrator) nameFor(url string) (string, error) {
	repoInfo, err := forge.ParseURL(url)
	if err != nil {
		return "", err
	}
	return catalog.SanitizeName(repoInfo.Owner + "-" + repoInfo.Name), nil
}
