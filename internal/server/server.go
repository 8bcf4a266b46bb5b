package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/ferrum/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app      *app.App
	router   *http.ServeMux
	server   *http.Server
	shutdown chan struct{}
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app:      application,
		shutdown: make(chan struct{}),
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.app.Config.Server.Host, s.app.Config.Server.Port)

	s.app.Logger.Info().
		Str("address", addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// ShutdownRequested signals when a shutdown was requested over the API
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}

// ShutdownHandler handles POST /api/shutdown. Disabled in production.
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.app.Config.IsProduction() {
		http.Error(w, "Shutdown endpoint disabled in production", http.StatusForbidden)
		return
	}

	s.app.Logger.Info().Msg("Shutdown requested via API")
	w.WriteHeader(http.StatusAccepted)

	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}
