// Package ingestion builds a repository's index from scratch: scan,
// chunk, embed, store, in fixed-size batches, emitting coarse progress
// events as it goes.
package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/repoindexer/repoindexer/internal/chunker"
	"github.com/repoindexer/repoindexer/internal/embedding"
	"github.com/repoindexer/repoindexer/internal/observability"
	"github.com/repoindexer/repoindexer/internal/vectorstore"
)

// DefaultExtensions is applied when a repository's IncludeExtensions is
// empty.
var DefaultExtensions = []string{
	".go", ".js", ".jsx", ".ts", ".tsx", ".py", ".java", ".rb", ".rs",
	".c", ".h", ".cpp", ".hpp", ".cs", ".md", ".json", ".yaml", ".yml",
}

// Phase names reported in Progress events.
const (
	PhaseCloning  = "cloning"
	PhaseScanning = "scanning"
	PhaseBatches  = "batches"
	PhaseFinalize = "finalizing"
)

// Outcome is the result of one ingestion run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Progress is one reported pipeline event.
type Progress struct {
	Phase      string
	Repository string
	Percentage float64
	Details    string
	Timestamp  time.Time
}

// OnProgress is invoked per Progress event. A panicking listener is
// recovered by the pipeline and never aborts the run.
type OnProgress func(Progress)

// FileError records a per-file or per-batch failure.
type FileError struct {
	Path  string
	Error string
}

// Options configures one ingestion run.
type Options struct {
	Repository      string
	Branch          string
	IncludeExt      []string
	ExcludePatterns []string
	FileBatchSize   int
	EmbeddingBatch  int
	OnProgress      OnProgress
}

// Result is the outcome of one ingestion run.
type Result struct {
	Outcome      Outcome
	FileCount    int
	ChunkCount   int
	DurationMs   int64
	ErrorMessage string
	Errors       []FileError
}

// Cloner clones a repository to local disk (internal/gitrepo.Repo
// satisfies this).
type Cloner interface {
	Clone(ctx context.Context, url, branch, localPath string) error
}

// Pipeline builds a repository's index from a local clone root.
type Pipeline struct {
	Cloner     Cloner
	Chunker    chunker.Chunker
	Embedder   embedding.Provider
	Store      vectorstore.Store
	Logger     *observability.Logger
	Metrics    *observability.MetricsCollector
}

func defaulted(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
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

func included(relPath string, extensions map[string]bool, excludes []glob.Glob) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	if !extensions[ext] {
		return false
	}
	for _, g := range excludes {
		if g.Match(relPath) {
			return false
		}
	}
	return true
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

func (p *Pipeline) report(onProgress OnProgress, repository, phase string, pct float64, details string) {
	if onProgress == nil {
		return
	}
	func() {
		defer func() { _ = recover() }()
		onProgress(Progress{Phase: phase, Repository: repository, Percentage: pct, Details: details, Timestamp: time.Now()})
	}()
}

// Run clones url on branch, scans localPath, and chunks/embeds/stores
// every included file into collectionName.
func (p *Pipeline) Run(ctx context.Context, url, localPath, collectionName string, opts Options) Result {
	start := time.Now()
	var result Result

	p.report(opts.OnProgress, opts.Repository, PhaseCloning, 5, "cloning repository")
	if p.Metrics != nil {
		defer func() { p.Metrics.RecordIngestionPhase(PhaseCloning, time.Since(start)) }()
	}
	if err := p.Cloner.Clone(ctx, url, opts.Branch, localPath); err != nil {
		result.Outcome = OutcomeFailed
		result.ErrorMessage = fmt.Sprintf("clone: %v", err)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	p.report(opts.OnProgress, opts.Repository, PhaseCloning, 10, "clone complete")

	extensions := extensionSet(opts.IncludeExt)
	excludes := buildExcludeGlobs(opts.ExcludePatterns)

	p.report(opts.OnProgress, opts.Repository, PhaseScanning, 12, "scanning files")
	var files []string
	_ = filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(localPath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, ".git/") {
			return nil
		}
		if included(rel, extensions, excludes) {
			files = append(files, rel)
		}
		return nil
	})
	p.report(opts.OnProgress, opts.Repository, PhaseScanning, 25, fmt.Sprintf("%d files found", len(files)))

	if err := p.Store.GetOrCreateCollection(ctx, collectionName); err != nil {
		result.Outcome = OutcomeFailed
		result.ErrorMessage = fmt.Sprintf("collection preparation: %v", err)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	fileBatchSize := defaulted(opts.FileBatchSize, 50)
	embeddingBatch := defaulted(opts.EmbeddingBatch, 100)

	batches := batchStrings(files, fileBatchSize)
	var successfulFiles, chunkCount int
	var errs []FileError

	for bi, batch := range batches {
		pct := 25 + float64(bi)/float64(max(len(batches), 1))*70
		p.report(opts.OnProgress, opts.Repository, PhaseBatches, pct, fmt.Sprintf("batch %d/%d chunking", bi+1, len(batches)))

		var chunks []chunker.Chunk
		for _, rel := range batch {
			full := filepath.Join(localPath, filepath.FromSlash(rel))
			content, meta, err := readFile(full, rel)
			if err != nil {
				errs = append(errs, FileError{Path: rel, Error: err.Error()})
				continue
			}
			fileChunks := p.Chunker.Chunk(opts.Repository, rel, content, meta)
			chunks = append(chunks, fileChunks...)
			successfulFiles++
		}

		p.report(opts.OnProgress, opts.Repository, PhaseBatches, pct, fmt.Sprintf("batch %d/%d embedding", bi+1, len(batches)))

		subBatches := batchChunks(chunks, embeddingBatch)
		for _, sub := range subBatches {
			texts := make([]string, len(sub))
			for i, c := range sub {
				texts[i] = c.Content
			}
			vectors, err := p.Embedder.GenerateEmbeddings(ctx, texts)
			if err != nil {
				errs = append(errs, FileError{Path: "(batch embedding/storage)", Error: err.Error()})
				continue
			}
			docs := make([]vectorstore.Document, len(sub))
			now := time.Now()
			for i, c := range sub {
				docs[i] = vectorstore.Document{
					ID:             c.ID,
					Repository:     c.Repository,
					FilePath:       c.FilePath,
					ChunkIndex:     c.ChunkIndex,
					TotalChunks:    c.TotalChunks,
					ChunkStartLine: c.StartLine,
					ChunkEndLine:   c.EndLine,
					Content:        c.Content,
					Vector:         vectors[i],
					FileExtension:  c.Metadata.Extension,
					FileSizeBytes:  c.Metadata.FileSizeBytes,
					ContentHash:    c.Metadata.ContentHash,
					IndexedAt:      now,
					FileModifiedAt: time.Unix(c.Metadata.FileModifiedAt, 0),
				}
			}
			if err := p.Store.AddDocuments(ctx, collectionName, docs); err != nil {
				errs = append(errs, FileError{Path: "(batch embedding/storage)", Error: err.Error()})
				continue
			}
			chunkCount += len(docs)
		}
	}

	p.report(opts.OnProgress, opts.Repository, PhaseFinalize, 97, "finalizing metadata")

	result.FileCount = successfulFiles
	result.ChunkCount = chunkCount
	result.Errors = errs
	result.DurationMs = time.Since(start).Milliseconds()
	if len(errs) == 0 {
		result.Outcome = OutcomeSuccess
	} else if successfulFiles > 0 {
		result.Outcome = OutcomePartial
		result.ErrorMessage = fmt.Sprintf("%d error(s) during ingestion", len(errs))
	} else {
		result.Outcome = OutcomeFailed
		result.ErrorMessage = fmt.Sprintf("%d error(s) during ingestion", len(errs))
	}

	if p.Metrics != nil {
		p.Metrics.RecordIngestionOutcome(result.FileCount, result.ChunkCount, len(errs))
	}
	if p.Logger != nil {
		p.Logger.InfoContext(ctx, "ingestion_complete",
			"repository", opts.Repository, "outcome", string(result.Outcome),
			"files", result.FileCount, "chunks", result.ChunkCount, "errors", len(errs))
	}

	p.report(opts.OnProgress, opts.Repository, PhaseFinalize, 100, "done")
	return result
}

func readFile(fullPath, relPath string) (string, chunker.Metadata, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return "", chunker.Metadata{}, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return "", chunker.Metadata{}, err
	}
	defer f.Close()

	var b strings.Builder
	reader := bufio.NewReader(f)
	if _, err := reader.WriteTo(&b); err != nil {
		return "", chunker.Metadata{}, err
	}
	content := b.String()
	meta := chunker.Metadata{
		Extension:      strings.ToLower(filepath.Ext(relPath)),
		FileSizeBytes:  info.Size(),
		ContentHash:    chunker.ContentHash(content),
		FileModifiedAt: info.ModTime().Unix(),
	}
	return content, meta, nil
}

func batchStrings(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func batchChunks(items []chunker.Chunk, size int) [][]chunker.Chunk {
	var out [][]chunker.Chunk
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
