package broadcast

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// SSEHandler streams hub events as Server-Sent Events
type SSEHandler struct {
	hub    *Hub
	opts   StreamOptions
	logger *logrus.Entry
}

// NewSSEHandler creates the /events handler
func NewSSEHandler(hub *Hub, opts StreamOptions) *SSEHandler {
	return &SSEHandler{
		hub:    hub,
		opts:   opts.withDefaults(),
		logger: utils.ComponentLogger("sse"),
	}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.hub.Subscribe(transportSSE)
	if err != nil {
		http.Error(w, "real-time channel unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.hub.Unsubscribe(sub)

	// The stream outlives the server write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	logger := h.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.ID,
		"remote_ip":     r.RemoteAddr,
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Info("SSE client connected")
	defer logger.Info("SSE client disconnected")

	ticker := time.NewTicker(h.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := event.Encode()
			if err != nil {
				logger.WithError(err).WithField("event", event.Type).Error("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, payload); err != nil {
				logger.WithError(err).Debug("SSE write failed")
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
