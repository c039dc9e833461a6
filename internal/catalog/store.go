package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when a repository record does not exist.
var ErrNotFound = errors.New("catalog: repository not found")

// ErrAlreadyExists is returned by Create when a record with that name
// is already present.
var ErrAlreadyExists = errors.New("catalog: repository already exists")

const documentVersion = "1.0"

// document is the on-disk shape: {version, repositories: {name: Record}}.
type document struct {
	Version      string            `json:"version"`
	Repositories map[string]Record `json:"repositories"`
}

// Store is the durable, single-file JSON Repository Metadata Store.
// Reads and read-modify-writes are serialized per the spec's
// single-writer discipline; the on-disk document is replaced
// atomically via write-temp-then-rename, grounded on the teacher's
// StateManager.Save pattern.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore opens (without requiring existence) a metadata store backed
// by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (document, error) {
	doc := document{Version: documentVersion, Repositories: map[string]Record{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("catalog: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("catalog: decode %s: %w", s.path, err)
	}
	if doc.Repositories == nil {
		doc.Repositories = map[string]Record{}
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("catalog: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("catalog: rename into place: %w", err)
	}
	return nil
}

// Get returns the record for name, or ErrNotFound.
func (s *Store) Get(name string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := doc.Repositories[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns all records, in no particular order.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(doc.Repositories))
	for _, r := range doc.Repositories {
		out = append(out, r)
	}
	return out, nil
}

// Create inserts a brand-new record, failing with ErrAlreadyExists if
// force is false and a record with that name is already present.
func (s *Store) Create(rec Record, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := doc.Repositories[rec.Name]; exists && !force {
		return ErrAlreadyExists
	}
	doc.Repositories[rec.Name] = rec
	return s.save(doc)
}

// Delete removes a record. It is not an error to delete a name that
// does not exist.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	delete(doc.Repositories, name)
	return s.save(doc)
}

// Mutate performs an atomic read-modify-write on the named record: it
// loads the current value, passes a pointer to fn, and persists the
// result. fn returning an error aborts the write.
func (s *Store) Mutate(name string, fn func(*Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := doc.Repositories[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	doc.Repositories[name] = rec
	if err := s.save(doc); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// PushHistory prepends entry to rec.UpdateHistory and prunes to limit,
// oldest-first (spec.md invariant 5: len(updateHistory) <= updateHistoryLimit,
// newest first).
func PushHistory(rec *Record, entry HistoryEntry, limit int) {
	rec.UpdateHistory = append([]HistoryEntry{entry}, rec.UpdateHistory...)
	if limit > 0 && len(rec.UpdateHistory) > limit {
		rec.UpdateHistory = rec.UpdateHistory[:limit]
	}
}

// Now is overridable in tests that need deterministic timestamps.
var Now = time.Now
