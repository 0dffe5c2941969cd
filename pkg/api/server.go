// Package api provides the HTTP surface UI components talk to: sync status,
// dashboard stats, a manual sync trigger, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetsync/sheetsync/internal/cache"
	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/internal/provider"
	"github.com/sheetsync/sheetsync/internal/syncer"
	"github.com/sheetsync/sheetsync/pkg/utils"
)

// ServerConfig configures the admin API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:9090")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing for browser UIs
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      "localhost:9090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		EnableCORS:   true,
	}
}

// Server exposes client state over HTTP.
type Server struct {
	httpServer *http.Server
	config     ServerConfig
	client     *provider.Client
	manager    *syncer.Manager
	store      *cache.Store
	monitor    *metrics.Collector
	logger     *utils.Logger
}

// NewServer creates an admin API server.
func NewServer(config ServerConfig, client *provider.Client, manager *syncer.Manager,
	store *cache.Store, monitor *metrics.Collector, logger *utils.Logger) *Server {

	if logger == nil {
		logger = utils.NewLogger(utils.INFO, nil)
	}

	s := &Server{
		config:  config,
		client:  client,
		manager: manager,
		store:   store,
		monitor: monitor,
		logger:  logger.WithComponent("api"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/sync", s.handleSync)
	mux.Handle("/metrics", promhttp.HandlerFor(monitor.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	handler := s.loggingMiddleware(mux)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("admin API listening on %s", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine.
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin API server error: %v", err)
		}
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports provider reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	body := map[string]interface{}{
		"healthy":  true,
		"mockMode": s.client.MockMode(),
	}

	status := http.StatusOK
	if !s.client.MockMode() {
		res, err := s.client.TestConnection(ctx)
		if err != nil {
			body["healthy"] = false
			body["error"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["latencyMs"] = res.LatencyMs
		}
	}

	s.writeJSON(w, status, body)
}

// handleStatus reports sync state, cache stats, and the metrics snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sync":    s.manager.Status(),
		"cache":   s.store.Stats(),
		"metrics": s.monitor.Snapshot(),
	})
}

// handleStats serves the dashboard aggregates.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.client.Stats())
}

// handleSync triggers a manual sync pass. An in-progress pass makes this a
// no-op rather than queuing a second one.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.manager.SyncNow(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Data synced successfully",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response: %v", err)
	}
}

// loggingMiddleware logs each request with its duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("%s %s (%s)", r.Method, r.URL.Path, utils.FormatDuration(time.Since(start)))
	})
}

// corsMiddleware adds CORS headers for browser-based dashboards.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
