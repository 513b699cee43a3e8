// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/noc-leaderboard/internal/models"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const sqliteBackend = "sqlite"

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.ComponentLogger("storage").WithField("backend", sqliteBackend),
		migrations: GetSQLiteMigrations(),
	}
}

// sqliteDSN appends the driver options the store relies on: a stable time
// format for DATETIME columns and a busy timeout for concurrent writers.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_time_format=sqlite&_pragma=busy_timeout(5000)"
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" && !strings.HasPrefix(s.config.ConnectionString, "file:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewStoreError("Failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(s.config.ConnectionString))
	if err != nil {
		return utils.NewStoreError("Failed to open SQLite database", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.NewStoreError("Failed to enable WAL mode", err)
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection. The handle is kept so that calls
// racing with shutdown fail with sql.ErrConnDone instead of a nil pointer.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.logger.Info("SQLite database connection closed")
	return err
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")
	if err := applyMigrations(context.Background(), s.db, sqliteMigrationDialect, s.migrations, s.logger); err != nil {
		return err
	}
	s.logger.Info("Database migrations completed")
	return nil
}

// ListEntries returns every entry, most recent id first
func (s *SQLiteStorage) ListEntries(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, text, status, created_at
		FROM entries ORDER BY id DESC
	`)
	if err != nil {
		return nil, utils.NewStoreError("Failed to query entries", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, utils.NewStoreError("Failed to scan entries", err)
	}
	return entries, nil
}

// GetEntry retrieves a single entry by id
func (s *SQLiteStorage) GetEntry(ctx context.Context, id int64) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, text, status, created_at
		FROM entries WHERE id = ?
	`, id)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewNotFoundError("Entry not found")
		}
		return nil, utils.NewStoreError("Failed to get entry", err)
	}
	return entry, nil
}

// CreateEntry inserts entry and sets its store-assigned id
func (s *SQLiteStorage) CreateEntry(ctx context.Context, entry *models.Entry) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (name, text, status, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.Name, entry.Text, string(entry.Status), entry.CreatedAt)
	if err != nil {
		return utils.NewStoreError("Failed to insert entry", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return utils.NewStoreError("Failed to read inserted entry id", err)
	}
	entry.ID = id
	return nil
}

// UpdateEntry writes the mutable fields of entry
func (s *SQLiteStorage) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET name = ?, text = ?, status = ?
		WHERE id = ?
	`, entry.Name, entry.Text, string(entry.Status), entry.ID)
	if err != nil {
		return utils.NewStoreError("Failed to update entry", err)
	}
	return requireAffected(result, "Failed to update entry")
}

// DeleteEntry removes the entry with the given id
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return utils.NewStoreError("Failed to delete entry", err)
	}
	return requireAffected(result, "Failed to delete entry")
}

// GetStats returns storage statistics
func (s *SQLiteStorage) GetStats(ctx context.Context) (*StorageStats, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	stats, err := collectStats(ctx, s.db, sqliteBackend)
	if err != nil {
		return nil, utils.NewStoreError("Failed to collect storage stats", err)
	}
	return stats, nil
}

// GetHealth pings the database
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	return checkHealth(s.db, sqliteBackend)
}

// requireAffected turns a zero-row result into a NOT_FOUND error
func requireAffected(result sql.Result, message string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewStoreError(message, err)
	}
	if affected == 0 {
		return utils.NewNotFoundError("Entry not found")
	}
	return nil
}
