// Package server provides the HTTP API for Kondate.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/rag"
)

// Server is the HTTP server for the Kondate API.
type Server struct {
	system *rag.System
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server over a bootstrapped System.
func NewServer(system *rag.System, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		system: system,
		config: cfg,
		logger: logger,
	}
}

// Router builds the chi router. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ask", s.handleAsk)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
