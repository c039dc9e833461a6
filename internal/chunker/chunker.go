// Package chunker splits file content into the content-addressed Chunk
// records the ingestion and incremental-update pipelines persist into
// the vector store. The splitting strategy itself is a pure function;
// this package only guarantees the determinism contract the rest of the
// system depends on — re-chunking an unchanged file must reproduce the
// same IDs for unchanged regions so the delete-then-upsert sequence
// driven by a "modified" change is idempotent.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Chunk is the unit of content persisted into the vector store
// (spec.md §3, "Chunk").
type Chunk struct {
	ID          string
	Repository  string
	FilePath    string
	ChunkIndex  int
	TotalChunks int
	StartLine   int
	EndLine     int
	Content     string
	Metadata    Metadata
}

// Metadata carries the per-chunk fields re-derived at chunk time and
// copied verbatim into vector-store document metadata (spec.md §6).
type Metadata struct {
	Extension      string
	FileSizeBytes  int64
	ContentHash    string
	FileModifiedAt int64 // unix seconds
}

// Chunker splits file content into Chunks.
type Chunker interface {
	Chunk(repository, filePath, content string, meta Metadata) []Chunk
}

// LineWindowChunker splits content into overlapping line windows. It is
// the generic, language-agnostic strategy used for every extension —
// the pipelines treat chunking as opaque and never branch on language.
type LineWindowChunker struct {
	// MaxLines bounds a chunk's line count.
	MaxLines int
	// OverlapLines repeats trailing lines of a chunk as the head of
	// the next one, so a search match near a window boundary still
	// surfaces enough context.
	OverlapLines int
}

// NewLineWindowChunker builds a LineWindowChunker with the given
// window/overlap sizes. A non-positive maxLines falls back to 120; an
// overlapLines that is negative or not smaller than maxLines falls back
// to maxLines/6. An overlap of 0 is kept.
func NewLineWindowChunker(maxLines, overlapLines int) *LineWindowChunker {
	if maxLines <= 0 {
		maxLines = 120
	}
	if overlapLines < 0 || overlapLines >= maxLines {
		overlapLines = maxLines / 6
	}
	return &LineWindowChunker{MaxLines: maxLines, OverlapLines: overlapLines}
}

// Chunk implements Chunker.
func (c *LineWindowChunker) Chunk(repository, filePath, content string, meta Metadata) []Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}

	stride := c.MaxLines - c.OverlapLines
	if stride <= 0 {
		stride = c.MaxLines
	}

	var windows [][2]int // [startLine, endLine] 1-indexed inclusive
	for start := 0; start < len(lines); start += stride {
		end := start + c.MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		windows = append(windows, [2]int{start + 1, end})
		if end >= len(lines) {
			break
		}
	}

	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		body := strings.Join(lines[w[0]-1:w[1]], "\n")
		chunks = append(chunks, Chunk{
			ID:          chunkID(repository, filePath, i, body),
			Repository:  repository,
			FilePath:    filePath,
			ChunkIndex:  i,
			TotalChunks: len(windows),
			StartLine:   w[0],
			EndLine:     w[1],
			Content:     body,
			Metadata:    meta,
		})
	}
	return chunks
}

// chunkID derives a deterministic ID from the triple the design notes
// specify: repository, filePath, chunkIndex, plus a content-derived
// stable key (spec.md §9, "Determinism of chunk IDs").
func chunkID(repository, filePath string, chunkIndex int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return repository + ":" + filePath + ":" + itoa(chunkIndex) + ":" + hex.EncodeToString(sum[:8])
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ContentHash hashes file content for the vector-store metadata's
// content_hash field, independent of any one chunk's hash.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
