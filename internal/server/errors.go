package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Status    int       `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// httpStatusFromError maps AppError codes to HTTP status codes
func httpStatusFromError(err error) int {
	switch utils.ErrorCode(err) {
	case utils.ErrCodeValidation:
		return http.StatusBadRequest
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err. Store and internal failures are logged with
// their details and answered with a generic message.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromError(err)
	code := utils.ErrorCode(err)

	var appErr *utils.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		s.requestLogger(r).WithError(err).Error("Request failed")
		s.writeError(w, status, code, "Internal server error", "")
		return
	}

	details := ""
	if code == utils.ErrCodeValidation {
		details = appErr.Details
	}
	s.writeError(w, status, code, appErr.Message, details)
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, code, message, details string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		Status:    status,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}
