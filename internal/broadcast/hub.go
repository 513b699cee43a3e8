// Package broadcast fans mutation events out to connected real-time clients.
//
// Delivery is best-effort and at-most-once: an event reaches the subscribers
// registered when it is published and nobody else. Each subscriber owns a
// bounded FIFO queue, so the order a subscriber observes is the publish
// order. A subscriber whose queue is full is dropped instead of blocking the
// publisher; clients are expected to reconnect and re-fetch full state.
package broadcast

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// ErrHubClosed is returned by Subscribe after Close
var ErrHubClosed = errors.New("broadcast hub closed")

// Subscriber is one registered receiver of events
type Subscriber struct {
	ID        uuid.UUID
	Transport string

	events chan Event
}

// Events yields queued events. The channel is closed when the subscriber is
// removed from the hub, either by Unsubscribe, by Close, or because it fell
// behind.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Hub is the in-process broadcast channel
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	closed      bool
	subscribers map[uuid.UUID]*Subscriber

	queueSize      int
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewHub creates a hub whose subscribers buffer up to queueSize events
func NewHub(queueSize int, metricsManager *metrics.Manager) *Hub {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Hub{
		subscribers:    make(map[uuid.UUID]*Subscriber),
		queueSize:      queueSize,
		logger:         utils.ComponentLogger("broadcast"),
		metricsManager: metricsManager,
	}
}

// Subscribe registers a new subscriber for the given transport name
func (h *Hub) Subscribe(transport string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscriber{
		ID:        uuid.New(),
		Transport: transport,
		events:    make(chan Event, h.queueSize),
	}
	h.subscribers[sub.ID] = sub

	if h.metricsManager != nil {
		h.metricsManager.GetPrometheusMetrics().SubscriberConnected(transport)
	}
	h.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.ID,
		"transport":     transport,
		"subscribers":   len(h.subscribers),
	}).Debug("Subscriber connected")

	return sub, nil
}

// Unsubscribe removes sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Publish assigns the next sequence number and enqueues the event on every
// current subscriber without blocking.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.seq++
	event.Seq = h.seq

	for _, sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			h.logger.WithFields(logrus.Fields{
				"subscriber_id": sub.ID,
				"transport":     sub.Transport,
				"seq":           event.Seq,
			}).Warn("Subscriber queue full, dropping subscriber")
			if h.metricsManager != nil {
				h.metricsManager.GetPrometheusMetrics().RecordSubscriberDropped(sub.Transport)
			}
			h.removeLocked(sub)
		}
	}

	if h.metricsManager != nil {
		h.metricsManager.GetPrometheusMetrics().RecordBroadcastEvent(string(event.Type))
	}
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// LastSeq returns the sequence number of the most recent event
func (h *Hub) LastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Close disconnects every subscriber and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subscribers {
		h.removeLocked(sub)
	}
	h.logger.Info("Broadcast hub closed")
}

// IsHealthy reports whether the hub still accepts subscribers
func (h *Hub) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	delete(h.subscribers, sub.ID)
	close(sub.events)

	if h.metricsManager != nil {
		h.metricsManager.GetPrometheusMetrics().SubscriberDisconnected(sub.Transport)
	}
}
