// Package server keeps the shared peer registry: the single source of truth
// for which connections are currently reachable by a broadcast.
package server

import (
	"log/slog"
	"sort"
	"sync"
)

// PeerID identifies a live connection. It is the remote network address of
// the connection and doubles as the sender label on broadcast messages.
type PeerID string

// Peer is a registry entry: the identity of a connection, the session token
// assigned when it was accepted, and the sending side of its mailbox.
type Peer struct {
	ID      PeerID
	Session string
	Mailbox *Mailbox
}

// Registry maps peer identities to mailboxes. Every read and mutation happens
// under a single mutex, which is never held across network I/O.
type Registry struct {
	mu     sync.Mutex
	peers  map[PeerID]*Peer
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger falls back to slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		peers:  make(map[PeerID]*Peer),
		logger: logger,
	}
}

// Insert adds peer to the registry, replacing any entry with the same ID.
// A replaced entry's mailbox is closed so its outbound loop winds down.
func (r *Registry) Insert(peer *Peer) int {
	r.mu.Lock()
	previous := r.peers[peer.ID]
	r.peers[peer.ID] = peer
	count := len(r.peers)
	r.mu.Unlock()

	if previous != nil && previous != peer {
		previous.Mailbox.Close()
		r.logger.Warn("replaced registry entry", "peer", peer.ID, "session", previous.Session)
	}
	return count
}

// Remove deletes the entry for id and closes its mailbox. Removing an absent
// id is a no-op. It reports whether an entry was removed.
func (r *Registry) Remove(id PeerID) bool {
	r.mu.Lock()
	peer, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	r.mu.Unlock()

	if ok {
		peer.Mailbox.Close()
	}
	return ok
}

// RemovePeer deletes peer's entry only if the registry still holds that exact
// session under peer.ID. A connection that was replaced therefore never
// removes its successor.
func (r *Registry) RemovePeer(peer *Peer) bool {
	r.mu.Lock()
	current, ok := r.peers[peer.ID]
	ok = ok && current.Session == peer.Session
	if ok {
		delete(r.peers, peer.ID)
	}
	r.mu.Unlock()

	peer.Mailbox.Close()
	return ok
}

// BroadcastExcept enqueues text onto the mailbox of every registered peer
// other than sender, in one pass under one lock acquisition. A peer whose
// mailbox is already closed is logged and skipped. It returns the number of
// mailboxes the message was delivered to.
func (r *Registry) BroadcastExcept(sender PeerID, text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for id, peer := range r.peers {
		if id == sender {
			continue
		}
		if err := peer.Mailbox.Send(text); err != nil {
			r.logger.Warn("dropping broadcast for peer", "peer", id, "sender", sender, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Lookup returns the entry registered under id, or nil.
func (r *Registry) Lookup(id PeerID) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[id]
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// IDs returns the registered identities in sorted order.
func (r *Registry) IDs() []PeerID {
	r.mu.Lock()
	ids := make([]PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
