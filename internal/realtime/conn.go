package realtime

import (
	"sync"

	"dispatch/internal/domain"
)

// Conn is one client socket. Outbound messages go through a bounded queue
// drained by the connection's writer goroutine.
type Conn struct {
	principal domain.Principal
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// rooms is guarded by the owning Hub's mutex.
	rooms map[string]struct{}
}

// NewConn creates a connection for principal with a send queue of size buffer.
func NewConn(principal domain.Principal, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{
		principal: principal,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
	}
}

// Principal returns the authenticated owner of the connection.
func (c *Conn) Principal() domain.Principal {
	return c.principal
}

// Messages returns the outbound queue.
func (c *Conn) Messages() <-chan []byte {
	return c.send
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue queues msg without blocking. Returns false when the queue is
// full or the connection is closed.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}
