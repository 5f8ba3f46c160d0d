package core

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/searchktools/canteen/core/pools"
)

type counters struct {
	accepted   atomic.Uint64
	rejected   atomic.Uint64
	active     atomic.Int64
	requests   atomic.Uint64
	completed  atomic.Uint64
	faults     atomic.Uint64
	idleClosed atomic.Uint64
}

// Stats is a snapshot of engine counters. It is safe to take from any
// goroutine while the engine runs.
type Stats struct {
	Accepted   uint64      `json:"accepted"`
	Rejected   uint64      `json:"rejected"`
	Active     int64       `json:"active"`
	Requests   uint64      `json:"requests"`
	Completed  uint64      `json:"completed"`
	Faults     uint64      `json:"faults"`
	IdleClosed uint64      `json:"idle_closed"`
	Buffers    pools.Stats `json:"buffers"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Accepted:   e.stats.accepted.Load(),
		Rejected:   e.stats.rejected.Load(),
		Active:     e.stats.active.Load(),
		Requests:   e.stats.requests.Load(),
		Completed:  e.stats.completed.Load(),
		Faults:     e.stats.faults.Load(),
		IdleClosed: e.stats.idleClosed.Load(),
		Buffers:    e.bytePool.Stats(),
	}
}

// Map flattens the snapshot into JSON-compatible values, buffer counters
// under "buffers".
func (s Stats) Map() map[string]any {
	return map[string]any{
		"accepted":    float64(s.Accepted),
		"rejected":    float64(s.Rejected),
		"active":      float64(s.Active),
		"requests":    float64(s.Requests),
		"completed":   float64(s.Completed),
		"faults":      float64(s.Faults),
		"idle_closed": float64(s.IdleClosed),
		"buffers": map[string]any{
			"gets":   float64(s.Buffers.Gets),
			"puts":   float64(s.Buffers.Puts),
			"misses": float64(s.Buffers.Misses),
		},
	}
}

// String returns the snapshot as JSON.
func (s Stats) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("error marshaling stats: %v", err)
	}
	return string(data)
}
