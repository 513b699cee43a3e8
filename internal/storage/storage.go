// File: internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/smartdevs17/noc-leaderboard/internal/models"
)

// Storage defines the interface for the leaderboard record store
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Entry operations
	ListEntries(ctx context.Context) ([]*models.Entry, error)
	GetEntry(ctx context.Context, id int64) (*models.Entry, error)
	CreateEntry(ctx context.Context, entry *models.Entry) error
	UpdateEntry(ctx context.Context, entry *models.Entry) error
	DeleteEntry(ctx context.Context, id int64) error

	// Statistics and monitoring
	GetStats(ctx context.Context) (*StorageStats, error)
	GetHealth() *StorageHealth
}

// StorageStats provides storage statistics
type StorageStats struct {
	Backend         string     `json:"backend"`
	TotalEntries    int64      `json:"total_entries"`
	ActiveEntries   int64      `json:"active_entries"`
	PendingEntries  int64      `json:"pending_entries"`
	OldestEntry     *time.Time `json:"oldest_entry,omitempty"`
	LatestEntry     *time.Time `json:"latest_entry,omitempty"`
	OpenConnections int        `json:"open_connections"`
	InUse           int        `json:"in_use"`
	Idle            int        `json:"idle"`
}

// StorageHealth reports whether the store is reachable
type StorageHealth struct {
	Healthy   bool      `json:"healthy"`
	Backend   string    `json:"backend"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var entry models.Entry
	var status string
	if err := row.Scan(&entry.ID, &entry.Name, &entry.Text, &status, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.Status = models.EntryStatus(status)
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*models.Entry, error) {
	entries := make([]*models.Entry, 0, 16)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// collectStats fills the backend-neutral part of StorageStats
func collectStats(ctx context.Context, db *sql.DB, backend string) (*StorageStats, error) {
	stats := &StorageStats{Backend: backend}

	row := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM entries
	`)
	if err := row.Scan(&stats.TotalEntries, &stats.ActiveEntries, &stats.PendingEntries); err != nil {
		return nil, err
	}

	if stats.TotalEntries > 0 {
		var oldest, latest time.Time
		if err := db.QueryRowContext(ctx, `SELECT created_at FROM entries ORDER BY id ASC LIMIT 1`).Scan(&oldest); err != nil {
			return nil, err
		}
		if err := db.QueryRowContext(ctx, `SELECT created_at FROM entries ORDER BY id DESC LIMIT 1`).Scan(&latest); err != nil {
			return nil, err
		}
		oldest, latest = oldest.UTC(), latest.UTC()
		stats.OldestEntry = &oldest
		stats.LatestEntry = &latest
	}

	dbStats := db.Stats()
	stats.OpenConnections = dbStats.OpenConnections
	stats.InUse = dbStats.InUse
	stats.Idle = dbStats.Idle

	return stats, nil
}

func checkHealth(db *sql.DB, backend string) *StorageHealth {
	health := &StorageHealth{Backend: backend, CheckedAt: time.Now().UTC()}
	if db == nil {
		health.Error = "database not connected"
		return health
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	return health
}
