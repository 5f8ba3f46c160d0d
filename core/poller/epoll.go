//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd int
	raw  []unix.EpollEvent
}

// New creates a new Poller (Linux)
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{epfd: epfd}, nil
}

// EPOLLRDHUP is only requested together with EPOLLIN. A peer that shut down
// its write side keeps reporting it, which would otherwise fire on every
// re-arm while a response is still being written.
func epollEvents(interest Interest) uint32 {
	ev := uint32(unix.EPOLLET | unix.EPOLLONESHOT)
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *EpollPoller) ctl(op, fd int, token Token, interest Interest) error {
	if p.epfd < 0 {
		return ErrClosed
	}
	ev := unix.EpollEvent{
		Events: epollEvents(interest),
		Fd:     int32(token),
	}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

// Register adds fd to the watch list
func (p *EpollPoller) Register(fd int, token Token, interest Interest) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, token, interest)
}

// Reregister re-arms a one-shot registration. EPOLL_CTL_MOD re-evaluates
// readiness, so data that arrived while disarmed is reported again.
func (p *EpollPoller) Reregister(fd int, token Token, interest Interest) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, token, interest)
}

// Deregister removes fd from the watch list
func (p *EpollPoller) Deregister(fd int) error {
	if p.epfd < 0 {
		return ErrClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events
func (p *EpollPoller) Wait(events []Event, timeout int) (int, error) {
	if p.epfd < 0 {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	n, err := unix.EpollWait(p.epfd, raw, timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		flags := raw[i].Events
		// A half-closed peer may still be waiting for our response, so
		// EPOLLRDHUP surfaces as a readable EOF rather than a hangup.
		events[i] = Event{
			Token:    Token(uint32(raw[i].Fd)),
			Readable: flags&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: flags&unix.EPOLLOUT != 0,
			Hangup:   flags&unix.EPOLLHUP != 0,
			Error:    flags&unix.EPOLLERR != 0,
		}
	}

	return n, nil
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	if p.epfd < 0 {
		return ErrClosed
	}
	err := unix.Close(p.epfd)
	p.epfd = -1
	return err
}
