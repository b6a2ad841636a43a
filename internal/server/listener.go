// Package server binds the listening socket, runs the accept loop, and shuts
// the relay down gracefully.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("relay listening", "addr", ln.Addr().String())
	return ln, nil
}

// Serve accepts connections on ln until Shutdown is called. A failed Accept
// is logged and retried; it never stops the loop. Serve always returns a
// non-nil error, http.ErrServerClosed after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(&retryListener{Listener: ln, logger: s.logger})
}

// ListenAndServe binds the configured address and serves on it. A bind
// failure is returned before any connection is accepted.
func (s *Server) ListenAndServe() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections, then closes every live connection
// and waits for their loops to exit, bounded by ctx and the configured
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down relay")

	// http.Server.Shutdown does not track hijacked connections, so this
	// returns once the listener is closed.
	httpErr := s.httpServer.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Warn("http server shutdown error", "error", httpErr)
	}

	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	return errors.Join(httpErr, s.hub.Shutdown(timeout))
}

// retryListener keeps the accept loop alive across transient Accept failures.
// Only closing the listener ends it.
type retryListener struct {
	net.Listener
	logger *slog.Logger
}

func (l *retryListener) Accept() (net.Conn, error) {
	delay := acceptRetryMin
	for {
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}

		l.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
		time.Sleep(delay)
		delay = min(delay*2, acceptRetryMax)
	}
}
