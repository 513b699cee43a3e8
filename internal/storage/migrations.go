package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
	Checksum    string    `db:"checksum"`
}

// checksum returns the hex SHA-256 of the migration body
func (m *Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					text TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('active', 'pending')),
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
				CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entries (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL,
					text TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('active', 'pending')),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
				CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);
			`,
		},
	}
}

// migrationDialect holds the statements that differ between backends
type migrationDialect struct {
	createTable string
	selectOne   string
	insert      string
}

var sqliteMigrationDialect = migrationDialect{
	createTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	selectOne: `SELECT checksum FROM schema_migrations WHERE version = ?`,
	insert:    `INSERT INTO schema_migrations (version, description, checksum) VALUES (?, ?, ?)`,
}

var postgresMigrationDialect = migrationDialect{
	createTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
	selectOne: `SELECT checksum FROM schema_migrations WHERE version = $1`,
	insert:    `INSERT INTO schema_migrations (version, description, checksum) VALUES ($1, $2, $3)`,
}

// applyMigrations runs every migration not yet recorded in schema_migrations,
// each in its own transaction. A recorded migration whose checksum changed is
// reported as an error instead of being re-applied.
func applyMigrations(ctx context.Context, db *sql.DB, dialect migrationDialect, migrations []*Migration, logger *logrus.Entry) error {
	if _, err := db.ExecContext(ctx, dialect.createTable); err != nil {
		return utils.NewStoreError("Failed to create schema_migrations table", err)
	}

	for _, migration := range migrations {
		sum := migration.checksum()

		var applied string
		err := db.QueryRowContext(ctx, dialect.selectOne, migration.Version).Scan(&applied)
		switch {
		case err == nil:
			if applied != sum {
				return utils.NewAppError(utils.ErrCodeDatabase,
					fmt.Sprintf("Migration %s was modified after being applied", migration.Version),
					fmt.Sprintf("recorded %s, current %s", applied, sum))
			}
			logger.WithField("version", migration.Version).Debug("Migration already applied")
			continue
		case err != sql.ErrNoRows:
			return utils.NewStoreError("Failed to read schema_migrations", err)
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return utils.NewStoreError("Failed to begin migration transaction", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
		if _, err := tx.ExecContext(ctx, dialect.insert, migration.Version, migration.Description, sum); err != nil {
			tx.Rollback()
			return utils.NewStoreError("Failed to record migration", err)
		}
		if err := tx.Commit(); err != nil {
			return utils.NewStoreError("Failed to commit migration", err)
		}
	}

	return nil
}
