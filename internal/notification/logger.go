package notification

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// DeliveryLogger logs webhook delivery operations with a fixed component field
type DeliveryLogger struct {
	entry *logrus.Entry
}

// NewDeliveryLogger creates a delivery logger on top of the process logger
func NewDeliveryLogger() *DeliveryLogger {
	return &DeliveryLogger{entry: utils.ComponentLogger("notification")}
}

// WithField returns a copy carrying one more field
func (dl *DeliveryLogger) WithField(key string, value interface{}) *DeliveryLogger {
	return &DeliveryLogger{entry: dl.entry.WithField(key, value)}
}

// Entry exposes the underlying logrus entry
func (dl *DeliveryLogger) Entry() *logrus.Entry {
	return dl.entry
}

// LogWebhookAttempt logs a webhook attempt
func (dl *DeliveryLogger) LogWebhookAttempt(url string, event string, seq uint64) {
	dl.entry.WithFields(logrus.Fields{
		"url":   url,
		"event": event,
		"seq":   seq,
	}).Debug("Webhook attempt started")
}

// LogWebhookResponse logs a webhook response
func (dl *DeliveryLogger) LogWebhookResponse(url string, statusCode int, duration time.Duration, err error) {
	entry := dl.entry.WithFields(logrus.Fields{
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("Webhook failed")
		return
	}
	entry.Debug("Webhook completed")
}

// LogRetryAttempt logs a retry attempt
func (dl *DeliveryLogger) LogRetryAttempt(url string, attempt, maxAttempts int, delay time.Duration) {
	dl.entry.WithFields(logrus.Fields{
		"url":          url,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"retry_delay":  delay.String(),
	}).Warn("Retrying webhook")
}

// LogDropped logs an event the forwarder could not queue
func (dl *DeliveryLogger) LogDropped(event string, seq uint64, reason string) {
	dl.entry.WithFields(logrus.Fields{
		"event":  event,
		"seq":    seq,
		"reason": reason,
	}).Warn("Webhook event dropped")
}
