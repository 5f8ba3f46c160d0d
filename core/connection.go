package core

import (
	"errors"
	"time"

	"github.com/searchktools/canteen/core/http"
	"github.com/searchktools/canteen/core/poller"
	"github.com/searchktools/canteen/core/pools"
	"github.com/searchktools/canteen/core/socket"
)

// State is where a connection is in its single request/response cycle.
type State uint8

// Connection states
const (
	StateAwaitingRead State = iota
	StateDispatching
	StateAwaitingWrite
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateAwaitingRead:
		return "awaiting-read"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingWrite:
		return "awaiting-write"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Connection represents an active connection. It owns its socket: nothing
// else reads from or writes to it.
type Connection struct {
	token    poller.Token
	sock     socket.Conn
	interest poller.Interest
	state    State

	in  []byte // accumulated request bytes
	out []byte // unwritten response bytes, consumed from the front

	written    int
	lastActive time.Time
}

func newConnection(token poller.Token, sock socket.Conn, in []byte, now time.Time) *Connection {
	return &Connection{
		token:      token,
		sock:       sock,
		interest:   poller.Readable,
		state:      StateAwaitingRead,
		in:         in,
		lastActive: now,
	}
}

func (c *Connection) Token() poller.Token       { return c.token }
func (c *Connection) State() State              { return c.state }
func (c *Connection) Interest() poller.Interest { return c.interest }
func (c *Connection) Socket() socket.Conn       { return c.sock }

// Buffered returns the number of request bytes read so far.
func (c *Connection) Buffered() int { return len(c.in) }

// Pending returns the number of response bytes not yet written.
func (c *Connection) Pending() int { return len(c.out) }

// Written returns the number of response bytes the socket accepted.
func (c *Connection) Written() int { return c.written }

// LastActive is the time of the last event delivered for the connection.
func (c *Connection) LastActive() time.Time { return c.lastActive }

func (c *Connection) touch(now time.Time) {
	c.lastActive = now
}

// OnReadable makes exactly one non-blocking read into scratch and appends
// what arrived to the input buffer. It returns the request once the
// accumulated bytes decode to a complete one; until then the connection
// keeps waiting for readability. A decode error other than ErrIncomplete is
// returned as is and the connection moves on to respond to it. Socket
// failures, including the peer closing early, come back as *ConnectionFault.
func (c *Connection) OnReadable(scratch []byte) (*http.Request, error) {
	if c.state != StateAwaitingRead {
		return nil, nil
	}

	n, err := c.sock.Read(scratch)
	switch {
	case errors.Is(err, socket.ErrWouldBlock):
		c.interest = poller.Readable
		return nil, nil
	case err != nil:
		return nil, c.fault("read", err)
	}
	c.in = append(c.in, scratch[:n]...)

	req, err := http.Decode(c.in)
	switch {
	case errors.Is(err, http.ErrIncomplete):
		c.interest = poller.Readable
		return nil, nil
	case err != nil:
		c.state = StateDispatching
		return nil, err
	}

	c.state = StateDispatching
	return req, nil
}

// Respond queues the serialized response and switches the connection to
// waiting for writability.
func (c *Connection) Respond(resp *http.Response) {
	c.out = resp.AppendTo(c.out)
	c.interest = poller.Writable
	c.state = StateAwaitingWrite
}

// OnWritable makes exactly one non-blocking write of everything still
// pending. It reports true once the whole response has been written, after
// which the connection only waits to be closed.
func (c *Connection) OnWritable() (bool, error) {
	if c.state != StateAwaitingWrite {
		return false, nil
	}

	n, err := c.sock.Write(c.out)
	if err != nil && !errors.Is(err, socket.ErrWouldBlock) {
		return false, c.fault("write", err)
	}
	c.written += n
	c.out = c.out[n:]

	if len(c.out) == 0 {
		c.out = nil
		c.interest = 0
		c.state = StateClosing
		return true, nil
	}

	c.interest = poller.Writable
	return false, nil
}

func (c *Connection) fault(op string, err error) error {
	c.state = StateClosing
	c.interest = 0
	return &ConnectionFault{Token: c.token, Op: op, Err: err}
}

func (c *Connection) release(pool *pools.BytePool) {
	if pool != nil && c.in != nil {
		pool.Put(c.in)
	}
	c.in = nil
	c.out = nil
}
