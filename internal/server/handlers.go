package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartdevs17/noc-leaderboard/internal/leaderboard"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const maxBodyBytes = 1 << 20

// entryRequest is the body of POST /leaderboard and PUT /leaderboard/{id}
type entryRequest struct {
	Name   *string `json:"name"`
	Text   *string `json:"text"`
	Status *string `json:"status,omitempty"`
}

func (req *entryRequest) validate() error {
	var missing []string
	if req.Name == nil {
		missing = append(missing, "name")
	}
	if req.Text == nil {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return utils.NewValidationError("Missing required fields", strings.Join(missing, ", "))
	}
	return nil
}

func (req *entryRequest) status() string {
	if req.Status == nil {
		return ""
	}
	return *req.Status
}

// loginRequest is the body of POST /login
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// decodeJSON reads exactly one JSON object into dst, rejecting unknown fields
func decodeJSON(r *http.Request, w http.ResponseWriter, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return utils.NewValidationError("Request body is required")
		}
		return utils.NewValidationError("Invalid JSON body", err.Error())
	}
	if decoder.More() {
		return utils.NewValidationError("Invalid JSON body", "unexpected data after JSON object")
	}
	return nil
}

// entryID parses the {id} route variable
func entryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.NewValidationError("Invalid entry id")
	}
	return id, nil
}

// Leaderboard Handlers

func (s *HTTPServer) listEntriesHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) getEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	entry, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) createEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	entry, err := s.service.Create(r.Context(), leaderboard.CreateEntryInput{
		Name:   *req.Name,
		Text:   *req.Text,
		Status: req.status(),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *HTTPServer) updateEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req entryRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	entry, err := s.service.Update(r.Context(), id, leaderboard.UpdateEntryInput{
		Name:   *req.Name,
		Text:   *req.Text,
		Status: req.status(),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) deleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.service.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) deletedEntriesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.DeletedEntries())
}

// Login Handler

func (s *HTTPServer) loginHandler(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.Allow(clientIP(r)) {
		s.recordLogin("rate_limited")
		w.Header().Set("Retry-After", "60")
		s.writeError(w, http.StatusTooManyRequests, utils.ErrCodeRateLimited, "Too many login attempts", "")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.recordLogin("invalid")
		s.writeServiceError(w, r, err)
		return
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	// Rejected credentials answer 200 with success=false; only malformed
	// requests and rate limiting use error statuses.
	if s.authenticator == nil {
		s.recordLogin("failure")
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": false})
		return
	}

	user, err := s.authenticator.Authenticate(identifier, req.Password)
	if err != nil {
		if utils.IsValidation(err) {
			s.recordLogin("invalid")
			s.writeServiceError(w, r, err)
			return
		}
		s.recordLogin("failure")
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": false})
		return
	}

	s.recordLogin("success")
	s.requestLogger(r).WithField("username", user.Username).Info("Login succeeded")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

func (s *HTTPServer) recordLogin(outcome string) {
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordLoginAttempt(outcome)
	}
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         s.config.App.Version,
		"metrics_enabled": s.config.Server.EnableMetrics,
	})
}

// detailedHealthHandler reports each component and answers 503 when the
// store or the broadcast hub is down.
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.hub.IsHealthy()
	components := map[string]interface{}{
		"broadcast": map[string]interface{}{
			"healthy":     s.hub.IsHealthy(),
			"subscribers": s.hub.Count(),
		},
		"audit_log": map[string]interface{}{
			"healthy": true,
			"entries": len(s.service.DeletedEntries()),
		},
	}

	if s.storage != nil {
		storageHealth := s.storage.GetHealth()
		healthy = healthy && storageHealth.Healthy
		components["storage"] = storageHealth
	}
	if s.forwarder != nil {
		components["notification"] = map[string]interface{}{
			"healthy": s.forwarder.IsHealthy(),
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    s.config.App.Version,
		"uptime":     time.Since(s.startTime).String(),
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"broadcast": map[string]interface{}{
			"subscribers": s.hub.Count(),
			"last_seq":    s.hub.LastSeq(),
		},
		"audit_log": map[string]interface{}{
			"entries": len(s.service.DeletedEntries()),
		},
		"metrics_enabled": s.config.Server.EnableMetrics,
	}

	if s.storage != nil {
		storageStats, err := s.storage.GetStats(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		stats["storage"] = storageStats
	}
	if s.forwarder != nil {
		stats["notification"] = s.forwarder.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}
