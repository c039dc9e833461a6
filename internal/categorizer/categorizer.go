package categorizer

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/repoindexer/repoindexer/internal/observability"
)

// Stat abstracts os.Stat so tests can simulate stat failures without
// touching the filesystem.
type Stat func(path string) (size int64, modifiedAt time.Time, err error)

func osStat(path string) (int64, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// Emit is called once per detected change, in arrival order.
type Emit func(DetectedChange)

// Categorizer implements the add/change/unlink -> added/modified/
// deleted/renamed algorithm of spec.md §4.1.
type Categorizer struct {
	renameWindow time.Duration
	stat         Stat
	logger       *observability.Logger
	emit         Emit

	mu      sync.Mutex
	states  map[string]FileState          // keyed by absolute path
	pending map[string]*pendingUnlink      // keyed by folderID:basename
}

// New builds a Categorizer that calls emit for every detected change.
func New(renameWindow time.Duration, logger *observability.Logger, emit Emit) *Categorizer {
	return &Categorizer{
		renameWindow: renameWindow,
		stat:         osStat,
		logger:       logger,
		emit:         emit,
		states:       map[string]FileState{},
		pending:      map[string]*pendingUnlink{},
	}
}

// WithStat overrides the stat function (for tests).
func (c *Categorizer) WithStat(s Stat) *Categorizer {
	c.stat = s
	return c
}

// Handle processes one raw event and emits zero or more DetectedChanges.
func (c *Categorizer) Handle(ev RawEvent) {
	switch ev.Type {
	case RawAdd:
		c.handleAdd(ev)
	case RawChange:
		c.handleChange(ev)
	case RawUnlink:
		c.handleUnlink(ev)
	}
}

func (c *Categorizer) captureState(ev RawEvent) *FileState {
	size, modAt, err := c.stat(ev.AbsolutePath)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("categorizer: stat failed, emitting change without state",
				"path", ev.AbsolutePath, "error", err.Error())
		}
		return nil
	}
	return &FileState{
		AbsolutePath: ev.AbsolutePath,
		RelativePath: ev.RelativePath,
		SizeBytes:    size,
		ModifiedAt:   modAt,
		Extension:    ev.Extension,
		CapturedAt:   time.Now(),
	}
}

func (c *Categorizer) handleAdd(ev RawEvent) {
	key := pendingKey(ev.FolderID, filepath.Base(ev.AbsolutePath))

	c.mu.Lock()
	pend, hit := c.pending[key]
	if hit {
		delete(c.pending, key)
		pend.timer.Stop()
	}
	c.mu.Unlock()

	current := c.captureState(ev)

	if hit {
		confidence := 0.7
		if pend.previousState != nil && current != nil && pend.previousState.SizeBytes == current.SizeBytes {
			confidence = 0.9
		}
		change := DetectedChange{
			Category:             Renamed,
			AbsolutePath:          ev.AbsolutePath,
			RelativePath:          ev.RelativePath,
			PreviousAbsolutePath:  pend.absolutePath,
			PreviousRelativePath:  pend.relativePath,
			FolderID:              ev.FolderID,
			FolderPath:            ev.FolderPath,
			CurrentState:          current,
			PreviousState:         pend.previousState,
			RenameConfidence:      confidence,
		}
		if current != nil {
			c.mu.Lock()
			c.states[ev.AbsolutePath] = *current
			c.mu.Unlock()
		}
		c.emit(change)
		return
	}

	change := DetectedChange{
		Category:     Added,
		AbsolutePath: ev.AbsolutePath,
		RelativePath: ev.RelativePath,
		FolderID:     ev.FolderID,
		FolderPath:   ev.FolderPath,
		CurrentState: current,
	}
	if current != nil {
		c.mu.Lock()
		c.states[ev.AbsolutePath] = *current
		c.mu.Unlock()
	}
	c.emit(change)
}

func (c *Categorizer) handleChange(ev RawEvent) {
	c.mu.Lock()
	prev, hadPrev := c.states[ev.AbsolutePath]
	c.mu.Unlock()

	current := c.captureState(ev)
	if current != nil {
		c.mu.Lock()
		c.states[ev.AbsolutePath] = *current
		c.mu.Unlock()
	}

	change := DetectedChange{
		Category:     Modified,
		AbsolutePath: ev.AbsolutePath,
		RelativePath: ev.RelativePath,
		FolderID:     ev.FolderID,
		FolderPath:   ev.FolderPath,
		CurrentState: current,
	}
	if hadPrev {
		p := prev
		change.PreviousState = &p
	}
	c.emit(change)
}

func (c *Categorizer) handleUnlink(ev RawEvent) {
	c.mu.Lock()
	prev, hadPrev := c.states[ev.AbsolutePath]
	delete(c.states, ev.AbsolutePath)
	c.mu.Unlock()

	key := pendingKey(ev.FolderID, filepath.Base(ev.AbsolutePath))
	pend := &pendingUnlink{
		absolutePath: ev.AbsolutePath,
		relativePath: ev.RelativePath,
		extension:    ev.Extension,
		folderID:     ev.FolderID,
		timestamp:    ev.Timestamp,
	}
	if hadPrev {
		p := prev
		pend.previousState = &p
		pend.previousSizeBytes = &p.SizeBytes
	}

	c.mu.Lock()
	c.pending[key] = pend
	c.mu.Unlock()

	pend.timer = time.AfterFunc(c.renameWindow, func() {
		c.mu.Lock()
		current, stillPending := c.pending[key]
		if !stillPending || current != pend {
			c.mu.Unlock()
			return
		}
		delete(c.pending, key)
		c.mu.Unlock()

		c.emit(DetectedChange{
			Category:             Deleted,
			AbsolutePath:          pend.absolutePath,
			RelativePath:          pend.relativePath,
			FolderID:              pend.folderID,
			PreviousState:         pend.previousState,
		})
	})
}

// Dispose drains all outstanding pending-unlinks as deleted events,
// cancels their timers, and empties state maps (spec.md §5,
// "Cancellation").
func (c *Categorizer) Dispose() {
	c.mu.Lock()
	pending := c.pending
	c.pending = map[string]*pendingUnlink{}
	c.states = map[string]FileState{}
	c.mu.Unlock()

	for _, pend := range pending {
		pend.timer.Stop()
		c.emit(DetectedChange{
			Category:      Deleted,
			AbsolutePath:  pend.absolutePath,
			RelativePath:  pend.relativePath,
			FolderID:      pend.folderID,
			PreviousState: pend.previousState,
		})
	}
}
