// Package metrics aggregates per-key latency samples into rolling percentiles.
package metrics

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Dimension names one measured duration within a sample.
type Dimension string

// Duration dimensions tracked for transcription backends and refinement.
const (
	DimFirstPartial Dimension = "first_partial"  // start to first partial text
	DimStopToFinal  Dimension = "stop_to_final"  // stop request to final text
	DimTotal        Dimension = "total"          // start to final text
	DimRefine       Dimension = "refine"         // refinement call latency
	DimStopOverhead Dimension = "stop_overhead"  // extra stop-to-final time vs. raw mode
)

// DefaultWindow is the per-key sample cap when none is configured.
const DefaultWindow = 50

// Stats holds the computed percentiles for one dimension.
type Stats struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
}

// KeySummary reports recent percentiles for one tracked key.
// Dimensions with zero samples are absent, never reported as zero.
type KeySummary struct {
	Key        string              `json:"key"`
	Dimensions map[Dimension]Stats `json:"dimensions"`
}

// Aggregator keeps a bounded ring of recent samples per (key, dimension).
// The window bounds memory and keeps percentiles representative of recent
// behavior rather than all-time history.
type Aggregator struct {
	mu     sync.Mutex
	window int
	rings  map[string]map[Dimension][]time.Duration
}

// NewAggregator creates an aggregator retaining at most window samples per
// (key, dimension). Non-positive window falls back to DefaultWindow.
func NewAggregator(window int) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		window: window,
		rings:  make(map[string]map[Dimension][]time.Duration),
	}
}

// Record appends one sample for key. Each entry in dims is stored in its own
// ring; once a ring is full the oldest value is evicted.
func (a *Aggregator) Record(key string, dims map[Dimension]time.Duration) {
	if key == "" || len(dims) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	byDim, ok := a.rings[key]
	if !ok {
		byDim = make(map[Dimension][]time.Duration)
		a.rings[key] = byDim
	}

	for dim, d := range dims {
		ring := byDim[dim]
		if len(ring) == a.window {
			copy(ring, ring[1:])
			ring = ring[:a.window-1]
		}
		byDim[dim] = append(ring, d)
	}
}

// Summary computes percentiles for every key that has at least one sample.
// Keys are returned in sorted order for stable presentation.
func (a *Aggregator) Summary() []KeySummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(a.rings))
	for key := range a.rings {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	summaries := make([]KeySummary, 0, len(keys))
	for _, key := range keys {
		if s, ok := a.summarizeLocked(key); ok {
			summaries = append(summaries, s)
		}
	}
	return summaries
}

// SummaryFor computes percentiles for a single key.
// The second return value is false when the key has no samples.
func (a *Aggregator) SummaryFor(key string) (KeySummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summarizeLocked(key)
}

func (a *Aggregator) summarizeLocked(key string) (KeySummary, bool) {
	byDim, ok := a.rings[key]
	if !ok {
		return KeySummary{}, false
	}

	dims := make(map[Dimension]Stats, len(byDim))
	for dim, ring := range byDim {
		if len(ring) == 0 {
			continue
		}
		dims[dim] = Stats{
			Count: len(ring),
			P50:   Percentile(0.50, ring),
			P95:   Percentile(0.95, ring),
		}
	}
	if len(dims) == 0 {
		return KeySummary{}, false
	}
	return KeySummary{Key: key, Dimensions: dims}, true
}

// Percentile computes the p-th percentile (0..1) of values by linear
// interpolation at rank p*(n-1). A single value is returned as-is.
// Zero values yields zero.
func Percentile(p float64, values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return values[0]
	}

	sorted := make([]time.Duration, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[hi]-sorted[lo]))
}
