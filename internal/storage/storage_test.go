package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/noc-leaderboard/internal/config"
	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/internal/models"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

func newTestStore(t *testing.T) Storage {
	t.Helper()
	utils.InitLogger("warn", "text", "discard", "")

	cfg := &config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "leaderboard.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	}

	store, err := NewStorage(cfg)
	require.NoError(t, err, "Failed to create storage")
	require.NoError(t, store.Connect(), "Failed to connect to storage")
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	return store
}

func newEntry(name, text string, status models.EntryStatus) *models.Entry {
	return &models.Entry{
		Name:      name,
		Text:      text,
		Status:    status,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestSQLiteEntryLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newEntry("Alice", "printer jam", models.StatusPending)
	require.NoError(t, store.CreateEntry(ctx, first))
	assert.Equal(t, int64(1), first.ID)

	second := newEntry("Bob", "vpn down", models.StatusActive)
	require.NoError(t, store.CreateEntry(ctx, second))
	assert.Equal(t, int64(2), second.ID)

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID, "entries are ordered by id descending")
	assert.Equal(t, int64(1), entries[1].ID)

	got, err := store.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt), "created_at round-trips: %s vs %s", first.CreatedAt, got.CreatedAt)

	got.Text = "printer fixed"
	got.Status = models.StatusActive
	require.NoError(t, store.UpdateEntry(ctx, got))

	updated, err := store.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "printer fixed", updated.Text)
	assert.Equal(t, models.StatusActive, updated.Status)
	assert.True(t, first.CreatedAt.Equal(updated.CreatedAt))

	require.NoError(t, store.DeleteEntry(ctx, first.ID))
	_, err = store.GetEntry(ctx, first.ID)
	assert.True(t, utils.IsNotFound(err))
}

func TestSQLiteMissingRowsAreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpdateEntry(ctx, &models.Entry{ID: 42, Name: "x", Text: "y", Status: models.StatusPending})
	assert.True(t, utils.IsNotFound(err), "got %v", err)

	err = store.DeleteEntry(ctx, 42)
	assert.True(t, utils.IsNotFound(err), "got %v", err)

	_, err = store.GetEntry(ctx, 42)
	assert.True(t, utils.IsNotFound(err), "got %v", err)
}

func TestSQLiteIDsAreNotReused(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newEntry("Alice", "printer jam", models.StatusPending)
	require.NoError(t, store.CreateEntry(ctx, first))
	require.NoError(t, store.DeleteEntry(ctx, first.ID))

	second := newEntry("Bob", "vpn down", models.StatusPending)
	require.NoError(t, store.CreateEntry(ctx, second))
	assert.Greater(t, second.ID, first.ID)
}

func TestSQLiteRejectsUnknownStatus(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateEntry(context.Background(), newEntry("Alice", "printer jam", models.EntryStatus("closed")))
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Migrate())
}

func TestStatsAndHealth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntry(ctx, newEntry("Alice", "printer jam", models.StatusPending)))
	require.NoError(t, store.CreateEntry(ctx, newEntry("Bob", "vpn down", models.StatusActive)))
	require.NoError(t, store.CreateEntry(ctx, newEntry("Carol", "badge reader", models.StatusActive)))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, int64(3), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.ActiveEntries)
	assert.Equal(t, int64(1), stats.PendingEntries)
	require.NotNil(t, stats.OldestEntry)
	require.NotNil(t, stats.LatestEntry)

	health := store.GetHealth()
	assert.True(t, health.Healthy)

	require.NoError(t, store.Close())
	assert.False(t, store.GetHealth().Healthy)
}

func TestCallsAfterCloseReturnStoreErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Close())

	_, err := store.ListEntries(ctx)
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))

	_, err = store.GetEntry(ctx, 1)
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))

	err = store.CreateEntry(ctx, newEntry("Alice", "printer jam", models.StatusPending))
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))

	err = store.UpdateEntry(ctx, &models.Entry{ID: 1, Name: "Alice", Text: "jam", Status: models.StatusActive})
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))

	err = store.DeleteEntry(ctx, 1)
	assert.Equal(t, utils.ErrCodeDatabase, utils.ErrorCode(err))

	assert.Error(t, store.Ping())
	assert.NoError(t, store.Close())
}

func TestNewStorageValidation(t *testing.T) {
	_, err := NewStorage(&config.StorageConfig{Type: "mysql", ConnectionString: "x", MaxConnections: 1})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeConfiguration, utils.ErrorCode(err))

	_, err = NewStorage(&config.StorageConfig{Type: "sqlite", MaxConnections: 1})
	assert.Error(t, err)

	store, err := NewStorage(&config.StorageConfig{Type: "postgresql", ConnectionString: "postgres://localhost/db", MaxConnections: 1})
	require.NoError(t, err)
	assert.IsType(t, &PostgreSQLStorage{}, store)
}

func TestStorageWithMetricsRecordsOperations(t *testing.T) {
	manager := metrics.NewManager()
	store := NewStorageWithMetrics(newTestStore(t), manager)
	ctx := context.Background()

	require.NoError(t, store.CreateEntry(ctx, newEntry("Alice", "printer jam", models.StatusPending)))
	_, err := store.ListEntries(ctx)
	require.NoError(t, err)
	assert.True(t, utils.IsNotFound(store.DeleteEntry(ctx, 99)))

	ops := manager.GetPrometheusMetrics().DatabaseOperationsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("insert", "entries", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("select", "entries", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("delete", "entries", "error")))
}
