package storage

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/internal/models"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const postgresBackend = "postgres"

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.ComponentLogger("storage").WithField("backend", postgresBackend),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	connector, err := pq.NewConnector(p.config.ConnectionString)
	if err != nil {
		return utils.NewStoreError("Failed to parse PostgreSQL connection string", err)
	}
	db := sql.OpenDB(connector)

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewStoreError("Failed to ping PostgreSQL database", err)
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection. The handle is kept so that calls
// racing with shutdown fail with sql.ErrConnDone instead of a nil pointer.
func (p *PostgreSQLStorage) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.logger.Info("PostgreSQL database connection closed")
	return err
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting PostgreSQL database migrations")
	if err := applyMigrations(context.Background(), p.db, postgresMigrationDialect, p.migrations, p.logger); err != nil {
		return err
	}
	p.logger.Info("PostgreSQL database migrations completed")
	return nil
}

// ListEntries returns every entry, most recent id first
func (p *PostgreSQLStorage) ListEntries(ctx context.Context) ([]*models.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, text, status, created_at
		FROM entries ORDER BY id DESC
	`)
	if err != nil {
		return nil, p.storeError("Failed to query entries", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, p.storeError("Failed to scan entries", err)
	}
	return entries, nil
}

// GetEntry retrieves a single entry by id
func (p *PostgreSQLStorage) GetEntry(ctx context.Context, id int64) (*models.Entry, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, text, status, created_at
		FROM entries WHERE id = $1
	`, id)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewNotFoundError("Entry not found")
		}
		return nil, p.storeError("Failed to get entry", err)
	}
	return entry, nil
}

// CreateEntry inserts entry and sets its store-assigned id
func (p *PostgreSQLStorage) CreateEntry(ctx context.Context, entry *models.Entry) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO entries (name, text, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, entry.Name, entry.Text, string(entry.Status), entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return p.storeError("Failed to insert entry", err)
	}
	return nil
}

// UpdateEntry writes the mutable fields of entry
func (p *PostgreSQLStorage) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE entries SET name = $1, text = $2, status = $3
		WHERE id = $4
	`, entry.Name, entry.Text, string(entry.Status), entry.ID)
	if err != nil {
		return p.storeError("Failed to update entry", err)
	}
	return requireAffected(result, "Failed to update entry")
}

// DeleteEntry removes the entry with the given id
func (p *PostgreSQLStorage) DeleteEntry(ctx context.Context, id int64) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return p.storeError("Failed to delete entry", err)
	}
	return requireAffected(result, "Failed to delete entry")
}

// GetStats returns storage statistics
func (p *PostgreSQLStorage) GetStats(ctx context.Context) (*StorageStats, error) {
	if p.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	stats, err := collectStats(ctx, p.db, postgresBackend)
	if err != nil {
		return nil, p.storeError("Failed to collect storage stats", err)
	}
	return stats, nil
}

// GetHealth pings the database
func (p *PostgreSQLStorage) GetHealth() *StorageHealth {
	return checkHealth(p.db, postgresBackend)
}

// storeError logs the server-side pq error fields before wrapping
func (p *PostgreSQLStorage) storeError(message string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		p.logger.WithFields(logrus.Fields{
			"pq_code":       string(pqErr.Code),
			"pq_code_name":  pqErr.Code.Name(),
			"pq_constraint": pqErr.Constraint,
		}).Warn(message)
	}
	return utils.NewStoreError(message, err)
}
