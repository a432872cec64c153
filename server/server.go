package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hannes/stoat-bridge/bridge"
)

// Server is the admin HTTP server. It exposes health, Prometheus
// metrics, and the per-pair bridge status.
type Server struct {
	addr     string
	table    *bridge.Table
	registry *prometheus.Registry
}

// NewServer creates a new admin server instance
func NewServer(addr string, table *bridge.Table, registry *prometheus.Registry) *Server {
	return &Server{
		addr:     addr,
		table:    table,
		registry: registry,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/health", s.healthCheck)
	router.Get("/pairs", s.pairStatus)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("[Admin] Listening on %s", s.addr)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// healthCheck provides a simple health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"healthy","service":"stoat-bridge"}`)); err != nil {
		log.Printf("[Admin] Failed to write health check response: %v", err)
	}
}

// pairStatus reports each channel pair and its readiness
func (s *Server) pairStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.table.Status()); err != nil {
		log.Printf("[Admin] Failed to write pair status response: %v", err)
	}
}
