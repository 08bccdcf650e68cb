// Package server exposes the document pipeline over HTTP: uploads, artifact
// listing, patient assignment, health, Prometheus metrics and a websocket
// progress feed.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xear-health/docflow/internal/config"
	"github.com/xear-health/docflow/internal/directory"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	cfg       config.ServerConfig
	pipeline  pipelineInterface
	documents documentLister
	patients  directory.Directory
	hub       *ProgressHub
	logger    *slog.Logger
	httpSrv   *http.Server
}

// New assembles the server. Pass the hub that is wired into the pipeline as
// its progress sink; a nil hub creates a fresh one (no pipeline events will
// reach it then).
func New(cfg config.ServerConfig, p pipelineInterface, docs documentLister, patients directory.Directory, hub *ProgressHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewProgressHub(logger)
	}
	s := &Server{
		cfg:       cfg,
		pipeline:  p,
		documents: docs,
		patients:  patients,
		hub:       hub,
		logger:    logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/documents", s.documentsHandler)
	mux.HandleFunc("/api/v1/documents/", s.documentHandler)
	mux.HandleFunc("/ws/progress", s.hub.Subscribe)

	handler := s.withLogging(s.withMetrics(mux))
	if cfg.CORSEnabled {
		handler = s.withCORS(handler)
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	return s
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.cfg.Address())
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
