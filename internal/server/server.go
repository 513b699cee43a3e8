// Package server exposes the leaderboard over HTTP, WebSocket and SSE.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/noc-leaderboard/internal/auth"
	"github.com/smartdevs17/noc-leaderboard/internal/broadcast"
	"github.com/smartdevs17/noc-leaderboard/internal/config"
	"github.com/smartdevs17/noc-leaderboard/internal/leaderboard"
	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/internal/notification"
	"github.com/smartdevs17/noc-leaderboard/internal/storage"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

// Dependencies are the components the HTTP surface binds to
type Dependencies struct {
	Service       leaderboard.Service
	Storage       storage.Storage
	Hub           *broadcast.Hub
	Forwarder     *notification.Forwarder
	Authenticator *auth.Authenticator
	Metrics       *metrics.Manager
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.Config
	server         *http.Server
	router         *mux.Router
	handler        http.Handler
	service        leaderboard.Service
	storage        storage.Storage
	hub            *broadcast.Hub
	forwarder      *notification.Forwarder
	authenticator  *auth.Authenticator
	loginLimiter   *ipRateLimiter
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	startTime      time.Time
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.Config, deps Dependencies) (*HTTPServer, error) {
	if deps.Service == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Leaderboard service is required")
	}
	if deps.Hub == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Broadcast hub is required")
	}

	s := &HTTPServer{
		config:         cfg,
		service:        deps.Service,
		storage:        deps.Storage,
		hub:            deps.Hub,
		forwarder:      deps.Forwarder,
		authenticator:  deps.Authenticator,
		loginLimiter:   newIPRateLimiter(cfg.Auth.LoginRatePerMin, cfg.Auth.LoginBurst),
		metricsManager: deps.Metrics,
		logger:         utils.ComponentLogger("http"),
		startTime:      time.Now(),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	// Streaming handlers only return once their subscription closes.
	s.server.RegisterOnShutdown(s.hub.Close)

	return s, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// Leaderboard endpoints
	s.router.HandleFunc("/leaderboard", s.listEntriesHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/leaderboard", s.createEntryHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/leaderboard/{id}", s.getEntryHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/leaderboard/{id}", s.updateEntryHandler).Methods(http.MethodPut)
	s.router.HandleFunc("/leaderboard/{id}", s.deleteEntryHandler).Methods(http.MethodDelete)
	s.router.HandleFunc("/deleted-entries", s.deletedEntriesHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/login", s.loginHandler).Methods(http.MethodPost)

	// Real-time endpoints
	streamOpts := broadcast.StreamOptions{
		WriteWait:      s.config.Realtime.WriteWait,
		PongWait:       s.config.Realtime.PongWait,
		PingPeriod:     s.config.Realtime.PingPeriod,
		MaxMessageSize: s.config.Realtime.MaxMessageSize,
		AllowedOrigins: s.config.Server.AllowedOrigins,
	}
	if s.config.Realtime.EnableWebSocket {
		s.router.Handle("/ws", broadcast.NewWebSocketHandler(s.hub, streamOpts)).Methods(http.MethodGet)
	}
	if s.config.Realtime.EnableSSE {
		s.router.Handle("/events", broadcast.NewSSEHandler(s.hub, streamOpts)).Methods(http.MethodGet)
	}

	if s.config.Server.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods(http.MethodGet)
	}

	if s.config.Server.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler()).Methods(http.MethodGet)
		s.router.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, utils.ErrCodeNotFound, "Route not found", "")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, utils.ErrCodeValidation, "Method not allowed", "")
	})

	// CORS wraps the router so preflight requests are answered before route
	// method matching.
	s.handler = cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})(s.router)
}

// Handler returns the fully wrapped HTTP handler
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *HTTPServer) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.Server.EnableMetrics,
		"websocket":       s.config.Realtime.EnableWebSocket,
		"sse":             s.config.Realtime.EnableSSE,
	}).Info("Starting HTTP server")

	// Update system and component metrics so they appear on first scrape
	s.refreshMetrics()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.systemMetricsUpdater(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.Stop()
	})

	return g.Wait()
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater(ctx context.Context) {
	if s.metricsManager == nil {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshMetrics()
		}
	}
}

func (s *HTTPServer) refreshMetrics() {
	if s.metricsManager == nil {
		return
	}
	s.metricsManager.UpdateSystemMetrics()

	prom := s.metricsManager.GetPrometheusMetrics()
	if s.storage != nil {
		prom.UpdateComponentHealth("storage", s.storage.GetHealth().Healthy)
	}
	prom.UpdateComponentHealth("broadcast", s.hub.IsHealthy())
	if s.forwarder != nil {
		prom.UpdateComponentHealth("notification", s.forwarder.IsHealthy())
	}
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
