package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smartdevs17/noc-leaderboard/internal/broadcast"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const (
	webhookSource  = "noc-leaderboard"
	webhookVersion = "1.0"
	maxRetryDelay  = 30 * time.Second
)

// WebhookSender posts events to a single URL with retries
type WebhookSender struct {
	logger        *DeliveryLogger
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Event     string      `json:"event"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
	Version   string      `json:"version"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int
	ResponseTime time.Duration
	Success      bool
	Error        error
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(timeout time.Duration, retryAttempts int, retryDelay time.Duration, logger *DeliveryLogger) *WebhookSender {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &WebhookSender{
		logger:        logger.WithField("component", "webhook_sender"),
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// BuildPayload wraps a broadcast event for delivery
func BuildPayload(event broadcast.Event) *WebhookPayload {
	return &WebhookPayload{
		Event:     string(event.Type),
		Seq:       event.Seq,
		Timestamp: time.Now().UTC(),
		Source:    webhookSource,
		Data:      event.Data,
		Version:   webhookVersion,
	}
}

// Send delivers payload to url, retrying non-2xx responses and transport
// errors with exponential backoff.
func (ws *WebhookSender) Send(ctx context.Context, url string, payload *WebhookPayload) *WebhookResponse {
	ws.logger.LogWebhookAttempt(url, payload.Event, payload.Seq)

	body, err := json.Marshal(payload)
	if err != nil {
		return &WebhookResponse{Error: utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())}
	}

	var last *WebhookResponse
	for attempt := 1; attempt <= ws.retryAttempts; attempt++ {
		if attempt > 1 {
			delay := calculateRetryDelay(ws.retryDelay, attempt)
			ws.logger.LogRetryAttempt(url, attempt, ws.retryAttempts, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &WebhookResponse{Error: ctx.Err()}
			}
		}

		last = ws.sendOnce(ctx, url, body)
		if last.Success {
			break
		}
	}

	ws.logger.LogWebhookResponse(url, last.StatusCode, last.ResponseTime, last.Error)
	return last
}

func (ws *WebhookSender) sendOnce(ctx context.Context, url string, body []byte) *WebhookResponse {
	start := time.Now()
	response := &WebhookResponse{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
		return response
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "NOC-Leaderboard/1.0")
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(start)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to send webhook", err.Error())
		return response
	}
	defer resp.Body.Close()

	// Read response body (limited to prevent memory issues)
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	response.StatusCode = resp.StatusCode

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
	} else {
		response.Error = utils.NewAppError(utils.ErrCodeInternal,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, snippet))
	}
	return response
}

// calculateRetryDelay returns base * 2^(attempt-2), capped
func calculateRetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	delay := base
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
