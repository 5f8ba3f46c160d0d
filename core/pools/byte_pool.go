// Package pools recycles the byte buffers connections accumulate requests in.
package pools

import (
	"sync"
	"sync/atomic"
)

// DefaultSizes are the capacity tiers of a BytePool built with New.
var DefaultSizes = []int{
	512,   // Small requests
	2048,  // One scratch read, the common case
	8192,  // Large
	32768, // Extra large
}

// BytePool is a multi-tiered byte slice pool for different size classes
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Gets uint64 `json:"gets"`
	Puts uint64 `json:"puts"`
	// Misses counts Get calls larger than the biggest tier and Put calls
	// with a buffer that did not come from a tier.
	Misses uint64 `json:"misses"`
}

// New creates a pool with DefaultSizes.
func New() *BytePool {
	return NewWithSizes(DefaultSizes)
}

// NewWithSizes creates a pool with custom tiers, given in ascending order.
func NewWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: append([]int(nil), sizes...),
	}

	for i, size := range bp.sizes {
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, 0, size)
				return &buf
			},
		}
	}

	return bp
}

// Get returns an empty slice with capacity of at least size.
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)
	for i, tier := range bp.sizes {
		if size <= tier {
			return (*bp.pools[i].Get().(*[]byte))[:0]
		}
	}

	bp.misses.Add(1)
	return make([]byte, 0, size)
}

// Put returns buf to the tier matching its capacity. Buffers that grew past
// their tier are left to the GC.
func (bp *BytePool) Put(buf []byte) {
	c := cap(buf)
	for i, tier := range bp.sizes {
		if c == tier {
			buf = buf[:0]
			bp.pools[i].Put(&buf)
			bp.puts.Add(1)
			return
		}
	}
	bp.misses.Add(1)
}

// Stats returns pool counters.
func (bp *BytePool) Stats() Stats {
	return Stats{
		Gets:   bp.gets.Load(),
		Puts:   bp.puts.Load(),
		Misses: bp.misses.Load(),
	}
}
