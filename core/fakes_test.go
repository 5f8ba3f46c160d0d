package core

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searchktools/canteen/core/poller"
	"github.com/searchktools/canteen/core/socket"
)

var errNotRegistered = errors.New("fd not registered")

type registration struct {
	token    poller.Token
	interest poller.Interest
	arms     int
}

// fakePoller records registrations. Tests deliver events through
// Engine.step instead of Wait.
type fakePoller struct {
	regs         map[int]*registration
	deregistered []int

	registerErr   error
	reregisterErr error
	rearmFd       int // reregisterErr applies to this fd only, or to all when 0
	closed        bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{regs: make(map[int]*registration)}
}

func (p *fakePoller) Register(fd int, token poller.Token, interest poller.Interest) error {
	if p.registerErr != nil {
		return p.registerErr
	}
	p.regs[fd] = &registration{token: token, interest: interest, arms: 1}
	return nil
}

func (p *fakePoller) Reregister(fd int, token poller.Token, interest poller.Interest) error {
	if p.reregisterErr != nil && (p.rearmFd == 0 || p.rearmFd == fd) {
		return p.reregisterErr
	}
	r, ok := p.regs[fd]
	if !ok {
		return errNotRegistered
	}
	r.token = token
	r.interest = interest
	r.arms++
	return nil
}

func (p *fakePoller) Deregister(fd int) error {
	if _, ok := p.regs[fd]; !ok {
		return errNotRegistered
	}
	delete(p.regs, fd)
	p.deregistered = append(p.deregistered, fd)
	return nil
}

func (p *fakePoller) Wait(events []poller.Event, timeout int) (int, error) {
	if timeout > 0 {
		time.Sleep(time.Millisecond)
	}
	return 0, nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

type readStep struct {
	data string
	err  error
}

// fakeConn replays scripted reads and accepts writes up to scripted
// limits. Once the limits run out every write is accepted in full.
type fakeConn struct {
	fd       int
	reads    []readStep
	limits   []int
	writeErr error

	out    bytes.Buffer
	writes int
	closed bool
}

func newFakeConn(fd int, reads ...string) *fakeConn {
	c := &fakeConn{fd: fd}
	for _, r := range reads {
		c.reads = append(c.reads, readStep{data: r})
	}
	return c
}

func (c *fakeConn) Fd() int { return c.fd }

func (c *fakeConn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, socket.ErrClosed
	}
	if len(c.reads) == 0 {
		return 0, socket.ErrWouldBlock
	}
	step := c.reads[0]
	c.reads = c.reads[1:]
	if step.err != nil {
		return 0, step.err
	}
	return copy(p, step.data), nil
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, socket.ErrClosed
	}
	c.writes++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if len(c.limits) > 0 {
		n = min(n, c.limits[0])
		c.limits = c.limits[1:]
	}
	if n == 0 {
		return 0, socket.ErrWouldBlock
	}
	c.out.Write(p[:n])
	return n, nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + c.fd}
}

func (c *fakeConn) Close() error {
	if c.closed {
		return socket.ErrClosed
	}
	c.closed = true
	return nil
}

type fakeListener struct {
	pending   []socket.Conn
	acceptErr error
	closed    bool
}

func (l *fakeListener) Fd() int { return 3 }

func (l *fakeListener) Accept() (socket.Conn, error) {
	if l.acceptErr != nil {
		return nil, l.acceptErr
	}
	if len(l.pending) == 0 {
		return nil, socket.ErrWouldBlock
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

func (l *fakeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
}

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}

type testServer struct {
	*Engine
	poller   *fakePoller
	listener *fakeListener
}

// startTestEngine prepares e for stepping by hand over fakes.
func startTestEngine(t *testing.T, e *Engine) *testServer {
	t.Helper()
	p := newFakePoller()
	ln := &fakeListener{}
	e.poller = p
	require.NoError(t, e.start(ln))
	require.Contains(t, p.regs, ln.Fd())
	return &testServer{Engine: e, poller: p, listener: ln}
}

// connect queues c on the listener, runs one batch with a listener event
// and returns the token it was registered under.
func (s *testServer) connect(t *testing.T, c *fakeConn) poller.Token {
	t.Helper()
	s.listener.pending = append(s.listener.pending, c)
	require.NoError(t, s.step([]poller.Event{{Token: ListenerToken, Readable: true}}))
	reg, ok := s.poller.regs[c.fd]
	require.True(t, ok, "connection %d not registered", c.fd)
	return reg.token
}

func (s *testServer) readable(t *testing.T, tok poller.Token) {
	t.Helper()
	require.NoError(t, s.step([]poller.Event{{Token: tok, Readable: true}}))
}

func (s *testServer) writable(t *testing.T, tok poller.Token) {
	t.Helper()
	require.NoError(t, s.step([]poller.Event{{Token: tok, Writable: true}}))
}
