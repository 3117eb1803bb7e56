package gateway

import (
	"sort"
	"sync"
	"time"
)

// LatencyStats summarizes emission-to-fan-out delay of session events, in
// milliseconds.
type LatencyStats struct {
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
	Mean  float64 `json:"mean_ms"`
	Count int     `json:"samples"`
}

// LatencyTracker keeps a sliding window of the most recent delivery delays.
type LatencyTracker struct {
	mu     sync.Mutex
	window []time.Duration
	next   int
	filled bool
}

func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 10000
	}
	return &LatencyTracker{window: make([]time.Duration, size)}
}

// Record adds one delay. Negative values come from clock adjustments and are
// skipped.
func (lt *LatencyTracker) Record(d time.Duration) {
	if d < 0 {
		return
	}
	lt.mu.Lock()
	lt.window[lt.next] = d
	lt.next++
	if lt.next == len(lt.window) {
		lt.next, lt.filled = 0, true
	}
	lt.mu.Unlock()
}

func (lt *LatencyTracker) samples() []time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.filled {
		return append([]time.Duration(nil), lt.window...)
	}
	return append([]time.Duration(nil), lt.window[:lt.next]...)
}

// Stats computes the summary over the current window.
func (lt *LatencyTracker) Stats() LatencyStats {
	ds := lt.samples()
	if len(ds) == 0 {
		return LatencyStats{}
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })

	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return LatencyStats{
		P50:   quantileMs(ds, 0.50),
		P95:   quantileMs(ds, 0.95),
		P99:   quantileMs(ds, 0.99),
		Max:   toMs(ds[len(ds)-1]),
		Mean:  toMs(sum) / float64(len(ds)),
		Count: len(ds),
	}
}

func toMs(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// quantileMs linearly interpolates between the two closest ranks of a sorted
// window.
func quantileMs(sorted []time.Duration, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i+1 >= len(sorted) {
		return toMs(sorted[len(sorted)-1])
	}
	frac := pos - float64(i)
	return toMs(sorted[i])*(1-frac) + toMs(sorted[i+1])*frac
}
