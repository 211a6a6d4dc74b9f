// Package server exposes the agent's operational HTTP surface: health,
// module status, and Prometheus metrics. Collected readings are not served
// here; they leave through the publisher adapters.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/boardscout/boardscout/internal/health"
	"github.com/boardscout/boardscout/internal/scheduler"
	"github.com/boardscout/boardscout/internal/telemetry"
	"github.com/boardscout/boardscout/internal/version"
)

// Server is the agent's operational HTTP server.
type Server struct {
	httpServer *http.Server
	sched      *scheduler.Scheduler
	conn       *health.Connectivity
	instanceID string
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server instance.
func New(addr string, sched *scheduler.Scheduler, conn *health.Connectivity, metrics *telemetry.Metrics, instanceID string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		sched:      sched,
		conn:       conn,
		instanceID: instanceID,
		logger:     logger,
		mux:        mux,
	}

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/modules", s.handleModules)
	mux.HandleFunc("GET /api/v1/modules/{id}", s.handleModule)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns agent liveness and the aggregate connectivity signal.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	online := false
	if s.conn != nil {
		online = s.conn.Online()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"service":  "boardscout",
		"instance": s.instanceID,
		"online":   online,
		"version":  version.Map(),
	})
}

// handleModules returns the schedule and failure state of every module.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.sched.Status())
}

// handleModule returns the state of a single module by id.
func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, st := range s.sched.Status() {
		if st.ID == id {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(st)
			return
		}
	}
	NotFound(w, fmt.Sprintf("module %q is not in the catalog", id), r.URL.Path)
}
