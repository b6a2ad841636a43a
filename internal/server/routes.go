// Package server maps HTTP routes onto the relay's handlers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Handler returns the relay's HTTP routes. Any path carrying a WebSocket
// upgrade is handed to the handshake; plain GETs on / and /healthz report
// health.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Upgrade and Connection tokens are case-insensitive, which mux's
	// Headers matcher is not.
	r.MatcherFunc(isUpgradeRequest).Methods(http.MethodGet).HandlerFunc(s.handleWebSocket)
	r.Path("/ws").Methods(http.MethodGet).HandlerFunc(s.handleWebSocket)
	r.Path("/").Methods(http.MethodGet).HandlerFunc(s.handleHealth)
	r.Path("/healthz").Methods(http.MethodGet).HandlerFunc(s.handleHealth)

	return r
}

func isUpgradeRequest(r *http.Request, _ *mux.RouteMatch) bool {
	return websocket.IsWebSocketUpgrade(r)
}
