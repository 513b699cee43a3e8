// Package leaderboard implements the entry mutations behind the HTTP API.
//
// Every create, update and delete runs under one process-wide mutex and
// publishes its broadcast event before releasing it, so the order in which
// subscribers observe events is the order in which the store committed the
// mutations. Reads do not take the lock.
package leaderboard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/internal/audit"
	"github.com/smartdevs17/noc-leaderboard/internal/broadcast"
	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/internal/models"
	"github.com/smartdevs17/noc-leaderboard/internal/storage"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// Service defines the leaderboard operations
type Service interface {
	List(ctx context.Context) ([]*models.Entry, error)
	Get(ctx context.Context, id int64) (*models.Entry, error)
	Create(ctx context.Context, input CreateEntryInput) (*models.Entry, error)
	Update(ctx context.Context, id int64, input UpdateEntryInput) (*models.Entry, error)
	Delete(ctx context.Context, id int64) error
	DeletedEntries() []models.DeletedEntry
}

// CreateEntryInput is the caller-supplied part of a new entry
type CreateEntryInput struct {
	Name   string
	Text   string
	Status string
}

// UpdateEntryInput replaces the mutable fields of an entry. An empty Status
// keeps the current one.
type UpdateEntryInput struct {
	Name   string
	Text   string
	Status string
}

// EntryService implements Service
type EntryService struct {
	storage        storage.Storage
	auditLog       *audit.Log
	publisher      broadcast.Publisher
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	// mu serializes mutations together with their publication
	mu  sync.Mutex
	now func() time.Time
}

// NewService wires a service. metricsManager may be nil.
func NewService(store storage.Storage, auditLog *audit.Log, publisher broadcast.Publisher, metricsManager *metrics.Manager) *EntryService {
	if publisher == nil {
		publisher = broadcast.PublisherFunc(func(broadcast.Event) {})
	}
	return &EntryService{
		storage:        store,
		auditLog:       auditLog,
		publisher:      publisher,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("leaderboard"),
		now:            time.Now,
	}
}

// List returns every entry, newest id first
func (s *EntryService) List(ctx context.Context) ([]*models.Entry, error) {
	entries, err := s.storage.ListEntries(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list entries")
		return nil, err
	}
	return entries, nil
}

// Get returns a single entry
func (s *EntryService) Get(ctx context.Context, id int64) (*models.Entry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.storage.GetEntry(ctx, id)
}

// Create validates and inserts a new entry, then announces it
func (s *EntryService) Create(ctx context.Context, input CreateEntryInput) (entry *models.Entry, err error) {
	name, text, status, err := validateFields(input.Name, input.Text, input.Status)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = models.StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.record("create", time.Now(), &err)

	entry = &models.Entry{
		Name:      name,
		Text:      text,
		Status:    status,
		CreatedAt: s.timestamp(),
	}
	if err = s.storage.CreateEntry(ctx, entry); err != nil {
		s.logger.WithError(err).Error("Failed to create entry")
		return nil, err
	}

	s.publisher.Publish(broadcast.Created(*entry))
	s.logger.WithFields(logrus.Fields{
		"id":     entry.ID,
		"status": entry.Status,
	}).Info("Entry created")
	return entry, nil
}

// Update replaces name and text, and status when given, then announces the
// committed row.
func (s *EntryService) Update(ctx context.Context, id int64, input UpdateEntryInput) (entry *models.Entry, err error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	name, text, status, err := validateFields(input.Name, input.Text, input.Status)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.record("update", time.Now(), &err)

	current, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	current.Name = name
	current.Text = text
	if status != "" {
		current.Status = status
	}
	if err = s.storage.UpdateEntry(ctx, current); err != nil {
		if !utils.IsNotFound(err) {
			s.logger.WithError(err).WithField("id", id).Error("Failed to update entry")
		}
		return nil, err
	}

	// current is the committed row: id and created_at never change.
	entry = current
	s.publisher.Publish(broadcast.Updated(*entry))
	s.logger.WithFields(logrus.Fields{
		"id":     entry.ID,
		"status": entry.Status,
	}).Info("Entry updated")
	return entry, nil
}

// Delete removes an entry and records its snapshot in the audit log before
// returning. Deleting a missing id is a NOT_FOUND error and leaves the log
// untouched.
func (s *EntryService) Delete(ctx context.Context, id int64) (err error) {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.record("delete", time.Now(), &err)

	entry, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err = s.storage.DeleteEntry(ctx, id); err != nil {
		if !utils.IsNotFound(err) {
			s.logger.WithError(err).WithField("id", id).Error("Failed to delete entry")
		}
		return err
	}

	s.auditLog.Append(models.NewDeletedEntry(*entry, s.timestamp()))
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateAuditLogEntries(s.auditLog.Len())
	}

	s.publisher.Publish(broadcast.Deleted(id))
	s.logger.WithField("id", id).Info("Entry deleted")
	return nil
}

// DeletedEntries returns the audit log, oldest deletion first
func (s *EntryService) DeletedEntries() []models.DeletedEntry {
	return s.auditLog.ListAll()
}

// timestamp matches the precision both store backends round-trip
func (s *EntryService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *EntryService) record(operation string, start time.Time, errp *error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if *errp != nil {
		status = strings.ToLower(utils.ErrorCode(*errp))
	}
	s.metricsManager.GetPrometheusMetrics().RecordMutation(operation, status, time.Since(start))
}

func validateID(id int64) error {
	if id <= 0 {
		return utils.NewValidationError("Invalid entry id")
	}
	return nil
}

// validateFields checks presence of name and text and the status enum. It
// returns the trimmed values; an empty status means "not provided".
func validateFields(name, text, rawStatus string) (string, string, models.EntryStatus, error) {
	name = strings.TrimSpace(name)
	text = strings.TrimSpace(text)

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if text == "" {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return "", "", "", utils.NewValidationError("Missing required fields", strings.Join(missing, ", "))
	}

	status, ok := models.ParseEntryStatus(rawStatus)
	if !ok {
		return "", "", "", utils.NewValidationError("Invalid status", "status must be one of: active, pending")
	}
	return name, text, status, nil
}
