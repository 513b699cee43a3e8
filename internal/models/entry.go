package models

import (
	"strings"
	"time"
)

// EntryStatus is the workflow state of a leaderboard entry
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusActive  EntryStatus = "active"
)

// Valid reports whether s is one of the known statuses
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive:
		return true
	default:
		return false
	}
}

// ParseEntryStatus normalizes a status string. An empty string yields
// ok=true with an empty status so callers can apply their own default.
func ParseEntryStatus(raw string) (EntryStatus, bool) {
	s := EntryStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return "", true
	}
	return s, s.Valid()
}

// Entry represents one leaderboard row
type Entry struct {
	ID        int64       `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Text      string      `json:"text" db:"text"`
	Status    EntryStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"date_created" db:"created_at"`
}

// DeletedEntry is a snapshot of an Entry taken at deletion time
type DeletedEntry struct {
	Entry
	DeletedAt time.Time `json:"date_deleted"`
}

// NewDeletedEntry snapshots entry with the given deletion time
func NewDeletedEntry(entry Entry, deletedAt time.Time) DeletedEntry {
	return DeletedEntry{Entry: entry, DeletedAt: deletedAt}
}
