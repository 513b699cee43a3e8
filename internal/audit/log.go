// Package audit keeps the process-lifetime record of deleted entries.
//
// The log is deliberately volatile: it starts empty, grows for as long as the
// process runs and is discarded on shutdown.
package audit

import (
	"sync"

	"github.com/smartdevs17/noc-leaderboard/internal/models"
)

// Log is an append-only, insertion-ordered sequence of deleted-entry
// snapshots. The zero value is ready to use.
type Log struct {
	mu      sync.RWMutex
	entries []models.DeletedEntry
}

// NewLog returns an empty log
func NewLog() *Log {
	return &Log{}
}

// Append adds a snapshot to the end of the log
func (l *Log) Append(snapshot models.DeletedEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, snapshot)
	l.mu.Unlock()
}

// ListAll returns a copy of every snapshot, oldest first
func (l *Log) ListAll() []models.DeletedEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.DeletedEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of snapshots held
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
