package broadcast

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const (
	transportWebSocket = "websocket"
	transportSSE       = "sse"
)

// StreamOptions tunes the real-time transports
type StreamOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 512
	}
	return o
}

// originAllowed accepts requests without an Origin header (non-browser
// clients), exact matches, and a "*" wildcard entry.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// WebSocketHandler upgrades requests and streams hub events as text frames
type WebSocketHandler struct {
	hub      *Hub
	opts     StreamOptions
	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

// NewWebSocketHandler creates the /ws handler
func NewWebSocketHandler(hub *Hub, opts StreamOptions) *WebSocketHandler {
	opts = opts.withDefaults()
	h := &WebSocketHandler{
		hub:    hub,
		opts:   opts,
		logger: utils.ComponentLogger("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(opts.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

// ServeHTTP subscribes before completing the handshake, so any mutation
// acknowledged after the client's dial returns is delivered to it.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.hub.Subscribe(transportWebSocket)
	if err != nil {
		http.Error(w, "real-time channel unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.Unsubscribe(sub)
		h.logger.WithError(err).WithField("remote_ip", r.RemoteAddr).Warn("WebSocket upgrade failed")
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.ID,
		"remote_ip":     r.RemoteAddr,
	})
	logger.Info("WebSocket client connected")

	go h.readPump(conn, sub, logger)
	h.writePump(conn, sub, logger)
}

// readPump discards client frames and keeps the read deadline fresh on pongs
func (h *WebSocketHandler) readPump(conn *websocket.Conn, sub *Subscriber, logger *logrus.Entry) {
	defer h.hub.Unsubscribe(sub)

	conn.SetReadLimit(h.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("WebSocket read failed")
			}
			return
		}
	}
}

// writePump is the only writer on conn
func (h *WebSocketHandler) writePump(conn *websocket.Conn, sub *Subscriber, logger *logrus.Entry) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sub)
		conn.Close()
		logger.Info("WebSocket client disconnected")
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}

			payload, err := event.Encode()
			if err != nil {
				logger.WithError(err).WithField("event", event.Type).Error("Failed to encode event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
