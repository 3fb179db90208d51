// ABOUTME: Transport abstraction for executor messages
// ABOUTME: Provides an in-process Pipe with ordered, at-most-once delivery
package protocol

import (
	"errors"
	"sync"
)

// ErrClosed is returned when sending on a closed transport
var ErrClosed = errors.New("transport closed")

// pipeBuffer is the per-direction queue depth of a Pipe
const pipeBuffer = 64

// Transport carries messages in both directions. Delivery is ordered and
// at-most-once; nothing is retried.
type Transport interface {
	Send(msg Message) error
	Messages() <-chan Message
	Close() error
}

// pipe is the shared state of both ends
type pipe struct {
	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

type pipeEnd struct {
	p    *pipe
	in   chan Message
	peer *pipeEnd
}

// Pipe returns two connected in-process transports. Closing either end
// closes both.
func Pipe() (Transport, Transport) {
	p := &pipe{done: make(chan struct{})}
	a := &pipeEnd{p: p, in: make(chan Message, pipeBuffer)}
	b := &pipeEnd{p: p, in: make(chan Message, pipeBuffer)}
	a.peer = b
	b.peer = a
	return a, b
}

// Send queues msg for the other end
func (e *pipeEnd) Send(msg Message) error {
	e.p.mu.RLock()
	defer e.p.mu.RUnlock()

	if e.p.closed {
		return ErrClosed
	}

	select {
	case e.peer.in <- msg:
		return nil
	case <-e.p.done:
		return ErrClosed
	}
}

// Messages returns the receive channel. It is closed when the pipe closes.
func (e *pipeEnd) Messages() <-chan Message {
	return e.in
}

// Close shuts down both ends. Safe to call more than once.
func (e *pipeEnd) Close() error {
	e.p.once.Do(func() {
		// Unblock pending senders before taking the write lock
		close(e.p.done)

		e.p.mu.Lock()
		defer e.p.mu.Unlock()
		e.p.closed = true
		close(e.in)
		close(e.peer.in)
	})
	return nil
}
