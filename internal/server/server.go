// Package server exposes the bot controls over HTTP and streams the bot
// status over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cryptohunter/internal/bot"
	"cryptohunter/internal/config"
)

// Controller is the part of the bot the control surface drives.
type Controller interface {
	Start() error
	Stop() error
	Status() bot.Status
}

// Server is the HTTP control surface.
type Server struct {
	httpServer   *http.Server
	logger       *slog.Logger
	ctrl         Controller
	pushInterval time.Duration
}

// New creates a Server with all routes registered.
func New(cfg config.ServerConfig, ctrl Controller, logger *slog.Logger) *Server {
	s := &Server{
		logger:       logger.With("component", "server"),
		ctrl:         ctrl,
		pushInterval: cfg.StatusPushInterval,
	}
	if s.pushInterval <= 0 {
		s.pushInterval = 5 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/bot/start", s.handleStart)
	mux.HandleFunc("POST /api/bot/stop", s.handleStop)
	mux.HandleFunc("GET /api/bot/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     logging(s.logger)(mux),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("Server: listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
