//go:build darwin || freebsd

package poller

import (
	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based I/O multiplexer. kqueue keys filters by
// descriptor, so the token of each descriptor is kept on the side.
type KqueuePoller struct {
	kqfd   int
	tokens map[int]Token
	raw    []unix.Kevent_t
}

// New creates a new Poller (BSD/macOS)
func New() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kqfd)

	return &KqueuePoller{
		kqfd:   kqfd,
		tokens: make(map[int]Token),
	}, nil
}

func (p *KqueuePoller) arm(fd int, interest Interest) error {
	const flags = unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT | unix.EV_CLEAR

	changes := make([]unix.Kevent_t, 0, 2)
	if interest&Readable != 0 {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_READ, flags)
		changes = append(changes, ev)
	}
	if interest&Writable != 0 {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, ev)
	}
	if len(changes) == 0 {
		return nil
	}

	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

// Register adds fd to the watch list
func (p *KqueuePoller) Register(fd int, token Token, interest Interest) error {
	if p.kqfd < 0 {
		return ErrClosed
	}
	if err := p.arm(fd, interest); err != nil {
		return err
	}
	p.tokens[fd] = token
	return nil
}

// Reregister re-arms a one-shot registration. A fired one-shot filter has
// already been deleted by the kernel, so adding it again is enough.
func (p *KqueuePoller) Reregister(fd int, token Token, interest Interest) error {
	if p.kqfd < 0 {
		return ErrClosed
	}
	p.tokens[fd] = token
	return p.arm(fd, interest)
}

// Deregister removes fd from the watch list
func (p *KqueuePoller) Deregister(fd int) error {
	if p.kqfd < 0 {
		return ErrClosed
	}
	delete(p.tokens, fd)

	// Either filter may already be gone after firing; ENOENT is expected.
	for _, filter := range []int{unix.EVFILT_READ, unix.EVFILT_WRITE} {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, filter, unix.EV_DELETE)
		if _, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil && err != unix.ENOENT {
			return err
		}
	}
	return nil
}

// Wait waits for I/O events
func (p *KqueuePoller) Wait(events []Event, timeout int) (int, error) {
	if p.kqfd < 0 {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	raw := p.raw[:len(events)]

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(p.kqfd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	out := 0
	for i := 0; i < n; i++ {
		ev := raw[i]
		token, ok := p.tokens[int(ev.Ident)]
		if !ok {
			continue
		}
		readable := ev.Filter == unix.EVFILT_READ
		eof := ev.Flags&unix.EV_EOF != 0
		events[out] = Event{
			Token:    token,
			Readable: readable,
			Writable: ev.Filter == unix.EVFILT_WRITE,
			Hangup:   eof && (!readable || ev.Data == 0),
			Error:    ev.Flags&unix.EV_ERROR != 0,
		}
		out++
	}

	return out, nil
}

// Close closes the Poller
func (p *KqueuePoller) Close() error {
	if p.kqfd < 0 {
		return ErrClosed
	}
	err := unix.Close(p.kqfd)
	p.kqfd = -1
	return err
}
