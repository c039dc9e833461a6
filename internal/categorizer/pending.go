package categorizer

import "time"

// pendingUnlink is the rename-correlation buffer entry (spec.md §3,
// "Pending Unlink"), keyed by (folderID, basename(absolutePath)).
type pendingUnlink struct {
	absolutePath      string
	relativePath      string
	extension         string
	folderID          string
	timestamp         time.Time
	previousSizeBytes *int64
	previousState     *FileState
	timer             *time.Timer
}

func pendingKey(folderID, basename string) string {
	return folderID + ":" + basename
}
