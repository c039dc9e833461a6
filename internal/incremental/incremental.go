// Package incremental applies a list of file changes to an existing
// index: filtering by extension/exclude rules, dispatching per change
// category, and batching embed/store calls across all surviving
// changes.
package incremental

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/repoindexer/repoindexer/internal/chunker"
	"github.com/repoindexer/repoindexer/internal/embedding"
	"github.com/repoindexer/repoindexer/internal/graphstore"
	"github.com/repoindexer/repoindexer/internal/observability"
	"github.com/repoindexer/repoindexer/internal/security"
	"github.com/repoindexer/repoindexer/internal/vectorstore"
)

// ChangeStatus mirrors the forge's file-diff status vocabulary.
type ChangeStatus string

const (
	Added    ChangeStatus = "added"
	Modified ChangeStatus = "modified"
	Deleted  ChangeStatus = "deleted"
	Renamed  ChangeStatus = "renamed"
)

// FileChange is one entry to apply.
type FileChange struct {
	Path         string
	Status       ChangeStatus
	PreviousPath string
}

// DefaultExtensions mirrors the Ingestion Pipeline's default set.
var DefaultExtensions = []string{
	".go", ".js", ".jsx", ".ts", ".tsx", ".py", ".java", ".rb", ".rs",
	".c", ".h", ".cpp", ".hpp", ".cs", ".md", ".json", ".yaml", ".yml",
}

// graphSupportedExtensions are the structurally-supported languages the
// optional graph store can parse (spec.md §4.3).
var graphSupportedExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
}

// Options configures one incremental-update application.
type Options struct {
	Repository      string
	LocalPath       string
	CollectionName  string
	IncludeExt      []string
	ExcludePatterns []string
	EmbeddingBatch  int
}

// FileError records a per-file or per-batch failure.
type FileError struct {
	Path  string
	Error string
}

// GraphStats accumulates the optional graph store's side-effect counts.
type GraphStats struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	FilesProcessed       int
	FilesSkipped         int
	Errors               []FileError
}

// Stats is the numeric outcome of applying a batch of changes.
type Stats struct {
	FilesAdded     int
	FilesModified  int
	FilesDeleted   int
	ChunksUpserted int
	ChunksDeleted  int
	DurationMs     int64
	Graph          *GraphStats
}

// Result is returned by Pipeline.Apply.
type Result struct {
	Stats  Stats
	Errors []FileError
}

// Pipeline applies incremental changes to an existing vector collection
// (and, if configured, a graph store).
type Pipeline struct {
	Chunker  chunker.Chunker
	Embedder embedding.Provider
	Store    vectorstore.Store
	Graph    graphstore.Store // nil disables graph side-effects
	Logger   *observability.Logger
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}
	return set
}

func buildExcludeGlobs(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

func passesFilter(path string, extensions map[string]bool, excludes []glob.Glob) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !extensions[ext] {
		return false
	}
	for _, g := range excludes {
		if g.Match(path) {
			return false
		}
	}
	return true
}

type pendingEmbed struct {
	chunk chunker.Chunk
}

// Apply filters opts' surrounding changes and applies each, batching
// embed/store calls across all surviving changes.
func (p *Pipeline) Apply(ctx context.Context, changes []FileChange, opts Options) Result {
	start := time.Now()
	extensions := extensionSet(opts.IncludeExt)
	excludes := buildExcludeGlobs(opts.ExcludePatterns)

	var stats Stats
	var errs []FileError
	var pending []pendingEmbed
	var graphStats *GraphStats
	if p.Graph != nil {
		graphStats = &GraphStats{}
	}

	for _, ch := range changes {
		filterPath := ch.Path
		if !passesFilter(filterPath, extensions, excludes) {
			continue
		}

		switch ch.Status {
		case Added:
			stats.FilesAdded++
			p.enqueueRead(ctx, opts, ch.Path, &pending, &errs)
			p.graphUpsert(ctx, opts, ch.Path, graphStats)

		case Modified:
			deleted, err := p.Store.DeleteDocumentsByFilePrefix(ctx, opts.CollectionName, opts.Repository, ch.Path)
			if err != nil {
				errs = append(errs, FileError{Path: ch.Path, Error: err.Error()})
			}
			stats.ChunksDeleted += deleted
			stats.FilesModified++
			p.enqueueRead(ctx, opts, ch.Path, &pending, &errs)
			p.graphDelete(ctx, opts, ch.Path, graphStats)
			p.graphUpsert(ctx, opts, ch.Path, graphStats)

		case Deleted:
			deleted, err := p.Store.DeleteDocumentsByFilePrefix(ctx, opts.CollectionName, opts.Repository, ch.Path)
			if err != nil {
				errs = append(errs, FileError{Path: ch.Path, Error: err.Error()})
			}
			stats.ChunksDeleted += deleted
			stats.FilesDeleted++
			p.graphDelete(ctx, opts, ch.Path, graphStats)

		case Renamed:
			if ch.PreviousPath == "" {
				errs = append(errs, FileError{Path: ch.Path, Error: "renamed change missing previousPath"})
				continue
			}
			deleted, err := p.Store.DeleteDocumentsByFilePrefix(ctx, opts.CollectionName, opts.Repository, ch.PreviousPath)
			if err != nil {
				errs = append(errs, FileError{Path: ch.Path, Error: err.Error()})
			}
			stats.ChunksDeleted += deleted
			stats.FilesModified++
			p.enqueueRead(ctx, opts, ch.Path, &pending, &errs)
			p.graphDelete(ctx, opts, ch.PreviousPath, graphStats)
			p.graphUpsert(ctx, opts, ch.Path, graphStats)
		}
	}

	embeddingBatch := opts.EmbeddingBatch
	if embeddingBatch <= 0 {
		embeddingBatch = 100
	}
	upserted := p.embedAndStore(ctx, opts, pending, embeddingBatch, &errs)
	stats.ChunksUpserted = upserted
	stats.DurationMs = time.Since(start).Milliseconds()
	stats.Graph = graphStats

	if p.Logger != nil {
		p.Logger.InfoContext(ctx, "incremental_update_applied",
			"repository", opts.Repository, "added", stats.FilesAdded, "modified", stats.FilesModified,
			"deleted", stats.FilesDeleted, "errors", len(errs))
	}

	return Result{Stats: stats, Errors: errs}
}

// safeJoin resolves relPath under root, rejecting traversal outside root.
// relPath here ultimately comes from a forge diff's file_path/previousPath,
// untrusted remote input, so this is the boundary that guards the local
// clone from an escape via "../".
func safeJoin(root, relPath string) (string, error) {
	return security.ValidatePath(filepath.FromSlash(relPath), root)
}

func (p *Pipeline) enqueueRead(ctx context.Context, opts Options, relPath string, pending *[]pendingEmbed, errs *[]FileError) {
	full, err := safeJoin(opts.LocalPath, relPath)
	if err != nil {
		*errs = append(*errs, FileError{Path: relPath, Error: err.Error()})
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		*errs = append(*errs, FileError{Path: relPath, Error: err.Error()})
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		*errs = append(*errs, FileError{Path: relPath, Error: err.Error()})
		return
	}
	content := string(data)
	meta := chunker.Metadata{
		Extension:      strings.ToLower(filepath.Ext(relPath)),
		FileSizeBytes:  info.Size(),
		ContentHash:    chunker.ContentHash(content),
		FileModifiedAt: info.ModTime().Unix(),
	}
	for _, c := range p.Chunker.Chunk(opts.Repository, relPath, content, meta) {
		*pending = append(*pending, pendingEmbed{chunk: c})
	}
}

func (p *Pipeline) embedAndStore(ctx context.Context, opts Options, pending []pendingEmbed, batchSize int, errs *[]FileError) int {
	upserted := 0
	for i := 0; i < len(pending); i += batchSize {
		end := i + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		sub := pending[i:end]

		texts := make([]string, len(sub))
		for j, pe := range sub {
			texts[j] = pe.chunk.Content
		}
		vectors, err := p.Embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			*errs = append(*errs, FileError{Path: "(batch embedding/storage)", Error: err.Error()})
			continue
		}

		now := time.Now()
		docs := make([]vectorstore.Document, len(sub))
		for j, pe := range sub {
			c := pe.chunk
			docs[j] = vectorstore.Document{
				ID:             c.ID,
				Repository:     c.Repository,
				FilePath:       c.FilePath,
				ChunkIndex:     c.ChunkIndex,
				TotalChunks:    c.TotalChunks,
				ChunkStartLine: c.StartLine,
				ChunkEndLine:   c.EndLine,
				Content:        c.Content,
				Vector:         vectors[j],
				FileExtension:  c.Metadata.Extension,
				FileSizeBytes:  c.Metadata.FileSizeBytes,
				ContentHash:    c.Metadata.ContentHash,
				IndexedAt:      now,
				FileModifiedAt: time.Unix(c.Metadata.FileModifiedAt, 0),
			}
		}
		if err := p.Store.UpsertDocuments(ctx, opts.CollectionName, docs); err != nil {
			*errs = append(*errs, FileError{Path: "(batch embedding/storage)", Error: err.Error()})
			continue
		}
		upserted += len(docs)
	}
	return upserted
}

func (p *Pipeline) graphUpsert(ctx context.Context, opts Options, relPath string, stats *GraphStats) {
	if p.Graph == nil || stats == nil {
		return
	}
	if !graphSupportedExtensions[strings.ToLower(filepath.Ext(relPath))] {
		stats.FilesSkipped++
		return
	}
	full, err := safeJoin(opts.LocalPath, relPath)
	if err != nil {
		stats.Errors = append(stats.Errors, FileError{Path: relPath, Error: err.Error()})
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		stats.Errors = append(stats.Errors, FileError{Path: relPath, Error: err.Error()})
		return
	}
	res, err := p.Graph.IngestFile(ctx, opts.Repository, relPath, string(data))
	if p.Logger != nil {
		p.Logger.LogGraphSideEffect(ctx, opts.Repository, relPath, "ingest", err)
	}
	if err != nil {
		stats.Errors = append(stats.Errors, FileError{Path: relPath, Error: err.Error()})
		return
	}
	stats.NodesCreated += res.NodesCreated
	stats.RelationshipsCreated += res.RelationshipsCreated
	stats.FilesProcessed++
}

func (p *Pipeline) graphDelete(ctx context.Context, opts Options, relPath string, stats *GraphStats) {
	if p.Graph == nil || stats == nil {
		return
	}
	if !graphSupportedExtensions[strings.ToLower(filepath.Ext(relPath))] {
		return
	}
	res, err := p.Graph.DeleteFileData(ctx, opts.Repository, relPath)
	if p.Logger != nil {
		p.Logger.LogGraphSideEffect(ctx, opts.Repository, relPath, "delete", err)
	}
	if err != nil {
		stats.Errors = append(stats.Errors, FileError{Path: relPath, Error: err.Error()})
		return
	}
	stats.NodesDeleted += res.NodesDeleted
	stats.RelationshipsDeleted += res.RelationshipsDeleted
}
