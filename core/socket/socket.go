// Package socket provides the non-blocking TCP listener and client sockets
// the engine drives. Sockets are raw descriptors so they can be handed to
// the poller directly.
package socket

import (
	"errors"
	"net"
)

// DefaultBacklog is the listen backlog used when none is configured.
const DefaultBacklog = 1024

// ErrWouldBlock is returned when a non-blocking call cannot make progress
// right now. It is not a failure.
var ErrWouldBlock = errors.New("socket: operation would block")

// ErrClosed is returned by operations on a closed socket.
var ErrClosed = errors.New("socket: use of closed socket")

// Conn is an accepted client socket in non-blocking mode.
type Conn interface {
	Fd() int
	// Read performs one non-blocking read. It returns ErrWouldBlock when no
	// data is available and io.EOF when the peer closed its side.
	Read(p []byte) (int, error)
	// Write performs one non-blocking write and reports how many bytes the
	// kernel accepted. It returns ErrWouldBlock when nothing was accepted.
	Write(p []byte) (int, error)
	RemoteAddr() net.Addr
	Close() error
}

// Listener is a listening socket in non-blocking mode.
type Listener interface {
	Fd() int
	// Accept takes one pending connection, or returns ErrWouldBlock when
	// none is pending.
	Accept() (Conn, error)
	Addr() net.Addr
	Close() error
}
