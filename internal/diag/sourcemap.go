package diag

import "sync"

// FileID is a small integer handle for a source file path, so that
// instructions and diagnostics can carry a cheap file reference instead of
// a string (§3: "source location (file id, line, column)").
type FileID int32

// SourceManager maps file ids to paths and back, assigned in registration
// order. The zero value is ready to use.
type SourceManager struct {
	mu    sync.Mutex
	paths []string
	index map[string]FileID
}

// NewSourceManager creates an empty manager.
func NewSourceManager() *SourceManager {
	return &SourceManager{index: make(map[string]FileID)}
}

// Intern registers path if not already known and returns its stable id.
func (sm *SourceManager) Intern(path string) FileID {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if id, ok := sm.index[path]; ok {
		return id
	}
	id := FileID(len(sm.paths))
	sm.paths = append(sm.paths, path)
	sm.index[path] = id
	return id
}

// Path resolves a file id back to its path, or "" if unknown.
func (sm *SourceManager) Path(id FileID) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if int(id) < 0 || int(id) >= len(sm.paths) {
		return ""
	}
	return sm.paths[id]
}
