package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/eapache/queue"

	"github.com/searchktools/canteen/core/poller"
	"github.com/searchktools/canteen/core/pools"
	"github.com/searchktools/canteen/core/socket"
)

// Registry is a fixed-capacity slab of live connections keyed by token.
// A connection is in the registry exactly while its socket is open and
// registered with the poller.
//
// A removed token is quarantined until Recycle, which the engine calls
// after each batch of events, so a stale event later in the same batch can
// never reach a newer connection. After that, the most recently freed
// token is handed out first.
type Registry struct {
	slots      []*Connection
	free       []poller.Token
	quarantine *queue.Queue // of poller.Token, in removal order
	live       int

	poller  poller.Poller
	pool    *pools.BytePool
	bufSize int
}

// NewRegistry creates a registry with room for capacity connections.
// Removal deregisters sockets from p; pool supplies input buffers of
// bufSize. Both may be nil.
func NewRegistry(capacity int, p poller.Poller, pool *pools.BytePool, bufSize int) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	r := &Registry{
		slots:      make([]*Connection, capacity),
		free:       make([]poller.Token, 0, capacity),
		quarantine: queue.New(),
		poller:     p,
		pool:       pool,
		bufSize:    bufSize,
	}
	for i := capacity - 1; i >= 0; i-- {
		r.free = append(r.free, FirstClientToken+poller.Token(i))
	}
	return r
}

// Insert wraps sock in a new connection waiting to read and returns its
// token. It fails with ErrRegistryFull at capacity; the caller still owns
// sock then.
func (r *Registry) Insert(sock socket.Conn, now time.Time) (poller.Token, error) {
	if len(r.free) == 0 {
		return 0, ErrRegistryFull
	}
	token := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	var in []byte
	if r.pool != nil {
		in = r.pool.Get(r.bufSize)
	}
	r.slots[r.index(token)] = newConnection(token, sock, in, now)
	r.live++
	return token, nil
}

// Get returns the live connection for token.
func (r *Registry) Get(token poller.Token) (*Connection, error) {
	if !r.valid(token) {
		return nil, fmt.Errorf("%w %d", ErrUnknownToken, token)
	}
	c := r.slots[r.index(token)]
	if c == nil {
		return nil, fmt.Errorf("%w %d", ErrUnknownToken, token)
	}
	return c, nil
}

// Remove deregisters and closes the connection's socket and frees its slot.
// The slot is freed even when deregistering or closing fails.
func (r *Registry) Remove(token poller.Token) error {
	c, err := r.Get(token)
	if err != nil {
		return err
	}
	r.slots[r.index(token)] = nil
	r.live--
	r.quarantine.Add(token)

	var errs []error
	if r.poller != nil {
		if err := r.poller.Deregister(c.sock.Fd()); err != nil {
			errs = append(errs, fmt.Errorf("deregister: %w", err))
		}
	}
	if err := c.sock.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	c.release(r.pool)

	return errors.Join(errs...)
}

// Recycle makes tokens removed since the last call available again.
func (r *Registry) Recycle() {
	for r.quarantine.Length() > 0 {
		r.free = append(r.free, r.quarantine.Remove().(poller.Token))
	}
}

// Each calls fn for every live connection in token order until fn returns
// false. fn must not insert or remove.
func (r *Registry) Each(fn func(*Connection) bool) {
	for _, c := range r.slots {
		if c != nil && !fn(c) {
			return
		}
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int { return r.live }

// Cap returns the capacity.
func (r *Registry) Cap() int { return len(r.slots) }

func (r *Registry) valid(token poller.Token) bool {
	return token >= FirstClientToken && int(token-FirstClientToken) < len(r.slots)
}

func (r *Registry) index(token poller.Token) int {
	return int(token - FirstClientToken)
}
