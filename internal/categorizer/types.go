// Package categorizer converts raw file-system events into semantic
// file changes (added/modified/deleted/renamed), correlating unlink+add
// pairs on the same basename into renames within a bounded window.
package categorizer

import "time"

// RawEventType is the kind of event the upstream watcher reports.
type RawEventType string

const (
	RawAdd    RawEventType = "add"
	RawChange RawEventType = "change"
	RawUnlink RawEventType = "unlink"
)

// RawEvent is a single filesystem notification from the watcher.
type RawEvent struct {
	Type         RawEventType
	AbsolutePath string
	RelativePath string
	FolderID     string
	FolderPath   string
	Extension    string
	Timestamp    time.Time
}

// Category is the semantic classification of a detected change.
type Category string

const (
	Added    Category = "added"
	Modified Category = "modified"
	Deleted  Category = "deleted"
	Renamed  Category = "renamed"
)

// FileState is the tracked state of a watched file (spec.md §3,
// "File State"), keyed by absolute path.
type FileState struct {
	AbsolutePath string
	RelativePath string
	SizeBytes    int64
	ModifiedAt   time.Time
	Extension    string
	CapturedAt   time.Time
}

// DetectedChange is the categorizer's output: a semantic change plus
// enough state to drive downstream chunk/embed/store decisions.
type DetectedChange struct {
	Category             Category
	AbsolutePath          string
	RelativePath          string
	PreviousAbsolutePath  string
	PreviousRelativePath  string
	FolderID              string
	FolderPath            string
	CurrentState          *FileState
	PreviousState         *FileState
	RenameConfidence      float64
}
