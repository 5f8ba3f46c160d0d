// Package poller wraps the operating system readiness notifier.
//
// Every registration is edge-triggered and one-shot: once an event has been
// delivered for a token, nothing more is reported for it until the owner
// calls Reregister.
package poller

import "errors"

// Token identifies a registration. It is returned unchanged in every Event
// delivered for that registration.
type Token uint32

// Interest is the set of readiness kinds a registration wants to hear about.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) String() string {
	switch i {
	case 0:
		return "none"
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case Readable | Writable:
		return "readable|writable"
	}
	return "invalid"
}

// Event is one readiness notification.
type Event struct {
	Token    Token
	Readable bool
	Writable bool
	// Hangup is set when the connection is closed in both directions. A peer
	// that only shut down its write side is reported as readable instead.
	Hangup bool
	Error  bool
}

// ErrClosed is returned by operations on a closed Poller.
var ErrClosed = errors.New("poller: closed")

// Poller is the I/O multiplexing interface
type Poller interface {
	// Register starts watching fd and arms it with interest.
	Register(fd int, token Token, interest Interest) error
	// Reregister re-arms a registration after an event was delivered for it.
	Reregister(fd int, token Token, interest Interest) error
	// Deregister stops watching fd.
	Deregister(fd int) error
	// Wait blocks until at least one event is ready or timeout milliseconds
	// pass (negative blocks forever) and fills events. An interrupted wait
	// returns zero events and no error.
	Wait(events []Event, timeout int) (int, error)
	Close() error
}
