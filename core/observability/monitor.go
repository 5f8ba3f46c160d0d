// Package observability keeps per-route latency and error metrics for the
// engine's dispatcher.
package observability

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// BucketBounds are the upper bounds of the latency histogram buckets. The
// last bucket counts everything slower.
var BucketBounds = [...]time.Duration{
	100 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const numBuckets = len(BucketBounds) + 1

// Monitor records handler latencies per route. Recording happens on the
// reactor goroutine; snapshots may be taken from anywhere.
type Monitor struct {
	routes sync.Map // route name -> *routeMetrics

	// SlowThreshold flags routes whose mean latency exceeds it.
	SlowThreshold time.Duration
	// ErrorRateThreshold flags routes whose share of failed requests exceeds it.
	ErrorRateThreshold float64
}

type routeMetrics struct {
	count   atomic.Uint64
	errors  atomic.Uint64
	total   atomic.Uint64 // nanoseconds
	min     atomic.Uint64
	max     atomic.Uint64
	buckets [numBuckets]atomic.Uint64
}

// NewMonitor creates a monitor flagging routes slower than 100ms on
// average or failing more than 5% of the time.
func NewMonitor() *Monitor {
	return &Monitor{
		SlowThreshold:      100 * time.Millisecond,
		ErrorRateThreshold: 0.05,
	}
}

// Record adds one handled request for route.
func (m *Monitor) Record(route string, d time.Duration, failed bool) {
	v, ok := m.routes.Load(route)
	if !ok {
		v, _ = m.routes.LoadOrStore(route, &routeMetrics{})
	}
	rm := v.(*routeMetrics)

	ns := uint64(max(d, 0))
	rm.count.Add(1)
	if failed {
		rm.errors.Add(1)
	}
	rm.total.Add(ns)
	storeMin(&rm.min, ns)
	storeMax(&rm.max, ns)
	rm.buckets[bucket(d)].Add(1)
}

func storeMin(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if cur != 0 && cur <= v {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func storeMax(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if cur >= v {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func bucket(d time.Duration) int {
	for i, bound := range BucketBounds {
		if d <= bound {
			return i
		}
	}
	return numBuckets - 1
}

// RouteStats is a snapshot of one route's metrics.
type RouteStats struct {
	Route   string             `json:"route"`
	Count   uint64             `json:"count"`
	Errors  uint64             `json:"errors"`
	Min     time.Duration      `json:"min"`
	Max     time.Duration      `json:"max"`
	Mean    time.Duration      `json:"mean"`
	Buckets [numBuckets]uint64 `json:"buckets"`
}

// ErrorRate is the share of failed requests.
func (s RouteStats) ErrorRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Count)
}

// Snapshot returns the metrics of every route seen so far, sorted by route.
func (m *Monitor) Snapshot() []RouteStats {
	var out []RouteStats
	m.routes.Range(func(k, v any) bool {
		rm := v.(*routeMetrics)
		s := RouteStats{
			Route:  k.(string),
			Count:  rm.count.Load(),
			Errors: rm.errors.Load(),
			Min:    time.Duration(rm.min.Load()),
			Max:    time.Duration(rm.max.Load()),
		}
		if s.Count > 0 {
			s.Mean = time.Duration(rm.total.Load() / s.Count)
		}
		for i := range rm.buckets {
			s.Buckets[i] = rm.buckets[i].Load()
		}
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Bottleneck is a route whose metrics crossed a threshold.
type Bottleneck struct {
	Kind    string `json:"kind"` // "latency" or "errors"
	Route   string `json:"route"`
	Details string `json:"details"`
}

// Bottlenecks evaluates the thresholds against the current snapshot.
func (m *Monitor) Bottlenecks() []Bottleneck {
	var out []Bottleneck
	for _, s := range m.Snapshot() {
		if s.Count == 0 {
			continue
		}
		if m.SlowThreshold > 0 && s.Mean > m.SlowThreshold {
			out = append(out, Bottleneck{
				Kind:    "latency",
				Route:   s.Route,
				Details: fmt.Sprintf("mean latency %v over %d requests", s.Mean, s.Count),
			})
		}
		if m.ErrorRateThreshold > 0 && s.ErrorRate() > m.ErrorRateThreshold {
			out = append(out, Bottleneck{
				Kind:    "errors",
				Route:   s.Route,
				Details: fmt.Sprintf("%.1f%% of %d requests failed", s.ErrorRate()*100, s.Count),
			})
		}
	}
	return out
}

// Map flattens the snapshot into JSON-compatible values keyed by route.
func (m *Monitor) Map() map[string]any {
	out := make(map[string]any)
	for _, s := range m.Snapshot() {
		buckets := make([]any, len(s.Buckets))
		for i, n := range s.Buckets {
			buckets[i] = float64(n)
		}
		out[s.Route] = map[string]any{
			"count":   float64(s.Count),
			"errors":  float64(s.Errors),
			"min_ms":  ms(s.Min),
			"max_ms":  ms(s.Max),
			"mean_ms": ms(s.Mean),
			"buckets": buckets,
		}
	}
	return out
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
