// Package server runs the per-connection actor: an inbound loop that reads
// frames and broadcasts text, and an outbound loop that drains the peer's
// mailbox onto the wire.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// Client is one accepted WebSocket connection and its registry entry.
type Client struct {
	conn         *websocket.Conn
	peer         *Peer
	registry     *Registry
	logger       *slog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
}

func newClient(conn *websocket.Conn, peer *Peer, registry *Registry, cfg Config) *Client {
	return &Client{
		conn:         conn,
		peer:         peer,
		registry:     registry,
		logger:       cfg.Logger.With("peer", peer.ID, "session", peer.Session),
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
	}
}

// Done is closed once the connection has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// run drives both loops and releases the connection once both have ended.
func (c *Client) run() {
	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		c.writePump()
	}()

	c.readPump()
	close(c.readDone)
	loops.Wait()
	c.closeConnection()
	c.logger.Debug("connection released")
}

// unregister removes this connection's registry entry. Only the first call
// per connection has any effect.
func (c *Client) unregister(reason string) {
	if c.registry.RemovePeer(c.peer) {
		c.logger.Info("peer unregistered", "reason", reason, "total", c.registry.Len())
	}
}

// closeConnection closes the socket and signals Done. Safe to call from
// either loop and from the hub.
func (c *Client) closeConnection() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection", "error", err)
		}
	})
}

// setupReadConnection arms the keepalive read deadline when pings are enabled.
func (c *Client) setupReadConnection() {
	if c.pingInterval <= 0 {
		return
	}
	wait := 2 * c.pingInterval
	if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		c.logger.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
}

func (c *Client) readPump() {
	c.setupReadConnection()

	for {
		frame, err := classifyFrame(c.conn.ReadMessage())
		if err != nil {
			c.logReadError(err)
			c.unregister("read error")
			return
		}

		switch frame.Kind {
		case FrameText:
			if c.peer.Mailbox.Closed() {
				c.logger.Debug("dropping message from unregistered peer", "bytes", len(frame.Text))
				return
			}
			delivered := c.registry.Broadcast(c.peer.ID, frame.Text)
			c.logger.Debug("broadcast message", "recipients", delivered, "bytes", len(frame.Text))
		case FrameClose:
			c.logger.Info("peer sent close", "code", frame.Code, "reason", frame.Reason)
			c.unregister("close frame")
			return
		default:
			c.logger.Warn("ignoring unsupported frame", "kind", frame.Kind, "type", frame.MessageType)
		}
	}
}

// logReadError logs a terminal read error at a level matching how routine it is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err),
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure):
		c.logger.Info("connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
		c.logger.Warn("unexpected websocket error", "error", err)
	default:
		c.logger.Warn("websocket read error", "error", err)
	}
}

func (c *Client) writePump() {
	if c.pingInterval > 0 {
		go c.keepAlive()
	}

	for {
		message, ok := c.peer.Mailbox.Receive(c.done)
		if !ok {
			c.writeCloseMessage()
			c.awaitReadEnd()
			c.closeConnection()
			return
		}

		if err := c.writeTextMessage(message); err != nil {
			if isExpectedCloseError(err) {
				c.logger.Debug("write after close", "error", err)
			} else {
				c.logger.Warn("error writing message", "error", err)
			}
			c.unregister("write error")
			c.closeConnection()
			return
		}
	}
}

func (c *Client) writeTextMessage(message string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

// awaitReadEnd gives the peer closeGracePeriod to answer our close frame
// before the socket is torn down under the inbound loop.
func (c *Client) awaitReadEnd() {
	timer := time.NewTimer(closeGracePeriod)
	defer timer.Stop()

	select {
	case <-c.readDone:
	case <-timer.C:
	}
}

// writeCloseMessage sends a normal-closure frame unless the connection is
// already gone.
func (c *Client) writeCloseMessage() {
	select {
	case <-c.done:
		return
	default:
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	if err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("error writing close message", "error", err)
	}
}

// keepAlive pings the peer every pingInterval until the connection is torn
// down. WriteControl is safe to call alongside the outbound loop's writes.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("error writing ping", "error", err)
				}
				return
			}
		}
	}
}
