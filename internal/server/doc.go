// Package server implements a real-time text relay over WebSocket.
//
// Every accepted connection is registered under its remote address and gets
// an unbounded mailbox. Text frames from one peer are prefixed with the
// sender's address and copied into the mailbox of every other registered
// peer; each peer's outbound loop writes its mailbox to the wire in order.
//
// The implementation is organized into files for the mailbox, registry,
// broadcast routing, frame classification, connection actor, hub, HTTP
// handlers, routing, listener, and configuration.
package server
