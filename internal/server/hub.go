// Package server supervises live connections: the Hub attaches upgraded
// connections to the registry, tracks their actors, and tears them down on
// shutdown.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub owns the peer registry and every running connection actor.
type Hub struct {
	registry *Registry
	cfg      Config

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub with an empty registry.
func NewHub(cfg Config) *Hub {
	cfg = cfg.sanitize()
	return &Hub{
		registry: NewRegistry(cfg.Logger),
		cfg:      cfg,
		clients:  make(map[*Client]struct{}),
	}
}

// Registry returns the hub's peer registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Count returns the number of registered peers.
func (h *Hub) Count() int {
	return h.registry.Len()
}

// Attach registers an upgraded connection under id and starts its inbound and
// outbound loops. It returns nil, closing conn, if the hub is shutting down.
func (h *Hub) Attach(conn *websocket.Conn, id PeerID) *Client {
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	peer := &Peer{
		ID:      id,
		Session: uuid.NewString(),
		Mailbox: NewMailbox(),
	}
	client := newClient(conn, peer, h.registry, h.cfg)

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		client.closeConnection()
		h.cfg.Logger.Info("rejected connection during shutdown", "peer", id)
		return nil
	}
	h.clients[client] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	total := h.registry.Insert(peer)
	client.logger.Info("peer registered", "total", total)

	go func() {
		defer h.wg.Done()
		client.run()

		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
	}()

	return client
}

// Shutdown closes every live connection and waits for their loops to exit.
// It returns context.DeadlineExceeded if they have not all exited within
// timeout. Connections attached afterwards are refused.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logger := h.cfg.Logger
	logger.Info("initiating hub shutdown")

	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(closeGracePeriod)
	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, client := range clients {
		if err := client.conn.WriteControl(websocket.CloseMessage, goingAway, deadline); err != nil && !isExpectedCloseError(err) {
			client.logger.Debug("error writing close message", "error", err)
		}
		client.unregister("shutdown")
		client.closeConnection()
	}
	logger.Info("closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		logger.Warn("hub shutdown timeout reached, some connections may still be running")
		return context.DeadlineExceeded
	}
}
