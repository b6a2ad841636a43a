// Package server implements an unbounded, ordered, single-consumer queue used
// to hand broadcast messages to a peer's outbound loop.
package server

import (
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Send once the mailbox has been closed.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is a FIFO queue of outbound text messages for a single peer.
// Any number of goroutines may Send; exactly one goroutine should Receive.
// Send never blocks, so a slow reader never stalls a sender.
type Mailbox struct {
	mu     sync.Mutex
	queue  []string
	closed bool
	ready  chan struct{}
}

// NewMailbox returns an empty, open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Send appends message to the queue. It returns ErrMailboxClosed if the
// mailbox has been closed.
func (m *Mailbox) Send(message string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	m.queue = append(m.queue, message)
	m.mu.Unlock()

	m.signal()
	return nil
}

// Receive returns the oldest queued message, blocking until one is available.
// Once the mailbox is closed, Receive drains what is left and then reports
// ok=false. It also returns ok=false as soon as done is closed.
func (m *Mailbox) Receive(done <-chan struct{}) (message string, ok bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			message = m.queue[0]
			m.queue[0] = ""
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return message, true
		}
		if m.closed {
			m.mu.Unlock()
			return "", false
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-done:
			return "", false
		}
	}
}

// Close marks the mailbox closed. It is safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.signal()
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
