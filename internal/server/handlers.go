// Package server exposes HTTP handlers: the WebSocket handshake and the
// health check.
package server

import (
	"fmt"
	"net/http"
)

// handleWebSocket upgrades the request to a WebSocket connection and attaches
// it to the hub under the caller's remote address. A failed upgrade has
// already been answered with an HTTP error by the upgrader; nothing is
// registered for it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.hub.Attach(conn, PeerID(r.RemoteAddr))
}

// handleHealth reports that the relay is up and how many peers it serves.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := fmt.Fprintf(w, "relay is running, %d peers connected\n", s.hub.Count()); err != nil {
		s.logger.Debug("error writing health response", "error", err)
	}
}
