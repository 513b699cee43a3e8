package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/internal/models"
)

const entriesTable = "entries"

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation,
		entriesTable,
		status,
		time.Since(start),
	)
}

// ListEntries lists entries and records metrics
func (s *StorageWithMetrics) ListEntries(ctx context.Context) ([]*models.Entry, error) {
	start := time.Now()
	entries, err := s.Storage.ListEntries(ctx)
	s.record("select", start, err)
	return entries, err
}

// GetEntry gets an entry and records metrics
func (s *StorageWithMetrics) GetEntry(ctx context.Context, id int64) (*models.Entry, error) {
	start := time.Now()
	entry, err := s.Storage.GetEntry(ctx, id)
	s.record("select_one", start, err)
	return entry, err
}

// CreateEntry inserts an entry and records metrics
func (s *StorageWithMetrics) CreateEntry(ctx context.Context, entry *models.Entry) error {
	start := time.Now()
	err := s.Storage.CreateEntry(ctx, entry)
	s.record("insert", start, err)
	return err
}

// UpdateEntry updates an entry and records metrics
func (s *StorageWithMetrics) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	start := time.Now()
	err := s.Storage.UpdateEntry(ctx, entry)
	s.record("update", start, err)
	return err
}

// DeleteEntry deletes an entry and records metrics
func (s *StorageWithMetrics) DeleteEntry(ctx context.Context, id int64) error {
	start := time.Now()
	err := s.Storage.DeleteEntry(ctx, id)
	s.record("delete", start, err)
	return err
}

// GetStats refreshes the connection gauge alongside the stats
func (s *StorageWithMetrics) GetStats(ctx context.Context) (*StorageStats, error) {
	stats, err := s.Storage.GetStats(ctx)
	if err == nil && s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateDatabaseConnections(stats.OpenConnections)
	}
	return stats, err
}
