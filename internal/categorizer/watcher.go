package categorizer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher bridges an fsnotify watcher to the Categorizer's raw event
// vocabulary, grounded on the local-watch indexing variants that
// translate fsnotify's Write/Create/Remove/Rename ops into add/change/
// unlink before categorization.
type Watcher struct {
	fsw        *fsnotify.Watcher
	root       string
	folderID   string
	categorize *Categorizer
	done       chan struct{}
}

// NewWatcher opens an fsnotify watch rooted at root, identified by
// folderID for rename-correlation-key purposes (spec.md §4.1:
// "folderId:basename").
func NewWatcher(root, folderID string, categorize *Categorizer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("categorizer: new watcher: %w", err)
	}
	return &Watcher{fsw: fsw, root: root, folderID: folderID, categorize: categorize, done: make(chan struct{})}, nil
}

// Run adds root (recursively) to the watch set and drains fsnotify
// events into the categorizer until Close is called.
func (w *Watcher) Run() error {
	if err := w.addRecursive(); err != nil {
		return err
	}
	go w.loop()
	return nil
}

func (w *Watcher) addRecursive() error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.categorize.Handle(w.toRawEvent(ev))
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// surfaced via the categorizer's logger at stat time; fsnotify
			// transport errors themselves are not file changes.
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) toRawEvent(ev fsnotify.Event) RawEvent {
	rel, _ := filepath.Rel(w.root, ev.Name)
	rawType := RawChange
	switch {
	case ev.Op&fsnotify.Create != 0:
		rawType = RawAdd
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		rawType = RawUnlink
	case ev.Op&fsnotify.Write != 0:
		rawType = RawChange
	}
	return RawEvent{
		Type:         rawType,
		AbsolutePath: ev.Name,
		RelativePath: rel,
		FolderID:     w.folderID,
		FolderPath:   w.root,
		Extension:    strings.TrimPrefix(filepath.Ext(ev.Name), "."),
		Timestamp:    time.Now(),
	}
}

// Close cancels the watch, disposes the categorizer's pending state,
// and releases the fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	w.categorize.Dispose()
	return w.fsw.Close()
}
