// Package server wires the relay together: configuration, the connection hub,
// the handshake upgrader, and the HTTP server that accepts connections.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server accepts WebSocket connections on one address and relays text
// messages between them.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	hub        *Hub
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New creates a Server from cfg. A nil cfg uses NewConfig defaults.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := cfg.sanitize()

	s := &Server{
		cfg:    sanitized,
		logger: sanitized.Logger,
		hub:    NewHub(sanitized),
	}

	origins := newOriginPolicy(sanitized.AllowedOrigins, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	s.httpServer = &http.Server{
		Addr:              sanitized.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Hub returns the server's connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}
