// Package graphstore maintains an optional in-process structural graph
// of files and functions, keyed by the stable IDs spec.md §6 names, so
// the Incremental Update Pipeline can keep a call/definition graph in
// sync with the vector index for structurally-supported languages.
package graphstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/dominikbraun/graph"
)

// NodeKind distinguishes file nodes from function nodes.
type NodeKind string

const (
	NodeFile     NodeKind = "file"
	NodeFunction NodeKind = "function"
)

// Node is one vertex in the structural graph.
type Node struct {
	ID        string
	Kind      NodeKind
	Repository string
	File      string
	Name      string
	StartLine int
}

// IngestResult reports what one IngestFile call added.
type IngestResult struct {
	NodesCreated         int
	RelationshipsCreated int
	Success              bool
}

// DeleteResult reports what one DeleteFileData call removed.
type DeleteResult struct {
	NodesDeleted         int
	RelationshipsDeleted int
	Success              bool
}

// Store is the optional graph side-effect surface the Incremental
// Update Pipeline calls for structurally-supported extensions.
type Store interface {
	IngestFile(ctx context.Context, repository, path, content string) (IngestResult, error)
	DeleteFileData(ctx context.Context, repository, path string) (DeleteResult, error)
}

// FileNodeID returns the stable File:<repo>:<path> node identifier.
func FileNodeID(repository, path string) string {
	return fmt.Sprintf("File:%s:%s", repository, path)
}

// FunctionNodeID returns the stable
// Function:<repo>:<path>:<name>:<startLine> node identifier.
func FunctionNodeID(repository, path, name string, startLine int) string {
	return fmt.Sprintf("Function:%s:%s:%s:%d", repository, path, name, startLine)
}

// functionDecl matches top-level JS/TS/JSX/TSX function and
// arrow-function-const declarations well enough to build a structural
// skeleton; it is intentionally shallow (full-language parsing is out
// of scope) — enough to populate Function nodes and a contains edge
// from the owning File node.
var functionDecl = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][\w$]*)\s*\(|^\s*(?:export\s+)?const\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?\(`)

func extractFunctions(content string) []string {
	var found []string
	seen := map[string]bool{}
	for _, m := range functionDecl.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name != "" && !seen[name] {
			seen[name] = true
			found = append(found, name)
		}
	}
	return found
}

// lineOf returns the 1-indexed line number of the first occurrence of
// needle in content, or 1 if not found.
func lineOf(content, needle string) int {
	idx := indexOf(content, needle)
	if idx < 0 {
		return 1
	}
	line := 1
	for i := 0; i < idx; i++ {
		if content[i] == '\n' {
			line++
		}
	}
	return line
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// InMemoryStore is a dominikbraun/graph-backed Store, grounded on
// mvp-joe-project-cortex's searcher.go graph construction, extended
// with incremental ingest/delete rather than a one-shot full build.
type InMemoryStore struct {
	mu sync.Mutex
	g  graph.Graph[string, Node]
	// fileNodes tracks which non-file node IDs belong to which file,
	// for deletion on the next change to that path.
	fileNodes map[string][]string
}

// NewInMemoryStore builds an empty directed graph.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		g:         graph.New(func(n Node) string { return n.ID }, graph.Directed()),
		fileNodes: map[string][]string{},
	}
}

func fileKey(repository, path string) string { return repository + ":" + path }

// IngestFile adds a File node and one Function node per extracted
// top-level function, with a "contains" edge from file to function.
// Re-ingesting a path first removes its previous nodes.
func (s *InMemoryStore) IngestFile(ctx context.Context, repository, path, content string) (IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeFileLocked(repository, path)

	fileID := FileNodeID(repository, path)
	if err := s.g.AddVertex(Node{ID: fileID, Kind: NodeFile, Repository: repository, File: path}); err != nil {
		return IngestResult{}, err
	}
	nodesCreated := 1
	relsCreated := 0
	var owned []string

	for _, name := range extractFunctions(content) {
		startLine := lineOf(content, name)
		fnID := FunctionNodeID(repository, path, name, startLine)
		node := Node{ID: fnID, Kind: NodeFunction, Repository: repository, File: path, Name: name, StartLine: startLine}
		if err := s.g.AddVertex(node); err != nil {
			continue
		}
		if err := s.g.AddEdge(fileID, fnID); err != nil {
			continue
		}
		nodesCreated++
		relsCreated++
		owned = append(owned, fnID)
	}

	s.fileNodes[fileKey(repository, path)] = owned
	return IngestResult{NodesCreated: nodesCreated, RelationshipsCreated: relsCreated, Success: true}, nil
}

// DeleteFileData removes the File node and every function node it owns.
func (s *InMemoryStore) DeleteFileData(ctx context.Context, repository, path string) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFileLocked(repository, path), nil
}

func (s *InMemoryStore) removeFileLocked(repository, path string) DeleteResult {
	key := fileKey(repository, path)
	owned := s.fileNodes[key]
	nodesDeleted, relsDeleted := 0, 0

	fileID := FileNodeID(repository, path)
	for _, fnID := range owned {
		_ = s.g.RemoveEdge(fileID, fnID)
		relsDeleted++
		if err := s.g.RemoveVertex(fnID); err == nil {
			nodesDeleted++
		}
	}
	if err := s.g.RemoveVertex(fileID); err == nil {
		nodesDeleted++
	}
	delete(s.fileNodes, key)
	return DeleteResult{NodesDeleted: nodesDeleted, RelationshipsDeleted: relsDeleted, Success: true}
}

// Size returns the current vertex count, for tests/diagnostics.
func (s *InMemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, err := s.g.Order()
	if err != nil {
		return 0
	}
	return order
}
