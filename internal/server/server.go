// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     server
// Description: HTTP and WebSocket front end for the flow controllers
// Author:      Mike Stoffels with Claude
// Created:     2025-12-08
// License:     MIT
// ============================================================================

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/msto63/spiritflow/internal/journal"
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
	"github.com/msto63/spiritflow/pkg/core/logging"
)

// Server serves the flow controllers over HTTP
type Server struct {
	httpServer  *http.Server
	handler     *Handler
	hub         *Hub
	controllers map[meditation.Flow]*player.Controller
	logger      *logging.Logger
	config      Config
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string

	// ToggleTimeout bounds one generation started over HTTP
	ToggleTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:          "127.0.0.1",
		Port:          8787,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  120 * time.Second,
		Version:       "1.0.0",
		ToggleTimeout: 2 * time.Minute,
	}
}

// New creates a server over the given controllers. store may be nil.
func New(cfg Config, controllers []*player.Controller, store journal.Store) (*Server, error) {
	if len(controllers) == 0 {
		return nil, errors.New("at least one controller is required")
	}

	logger := logging.New("server")

	byFlow := make(map[meditation.Flow]*player.Controller, len(controllers))
	for _, c := range controllers {
		if _, dup := byFlow[c.Flow()]; dup {
			return nil, fmt.Errorf("duplicate controller for flow %s", c.Flow())
		}
		byFlow[c.Flow()] = c
	}

	hub := NewHub(byFlow, cfg.ToggleTimeout)
	for _, c := range controllers {
		c.AddListener(hub.Broadcast)
	}

	h := NewHandler(cfg, byFlow, store)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ws", hub)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/", h)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      loggingMiddleware(logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer:  httpServer,
		handler:     h,
		hub:         hub,
		controllers: byFlow,
		logger:      logger,
		config:      cfg,
	}, nil
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets the websocket upgrade take over the connection
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the server and blocks
func (s *Server) Start() error {
	s.logger.Info("Starting SpiritFlow server",
		"host", s.config.Host,
		"port", s.config.Port,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server and releases every controller
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping SpiritFlow server")

	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()

	for flow, c := range s.controllers {
		if cerr := c.Close(); cerr != nil {
			s.logger.Warn("Error closing controller", "flow", flow, "error", cerr)
		}
	}
	return err
}

// Address returns the server address
func (s *Server) Address() string {
	return s.httpServer.Addr
}
