package loadtest

import (
	"slices"
	"sync"
	"time"
)

// LatencySummary describes the request latencies observed for one step.
type LatencySummary struct {
	Count int
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Latencies collects request durations per step.
type Latencies struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
}

// NewLatencies creates an empty collector.
func NewLatencies() *Latencies {
	return &Latencies{samples: make(map[string][]time.Duration)}
}

// Observe records one request of step.
func (l *Latencies) Observe(step string, d time.Duration) {
	l.mu.Lock()
	l.samples[step] = append(l.samples[step], d)
	l.mu.Unlock()
}

// Summary returns nearest-rank percentiles for every observed step.
func (l *Latencies) Summary() map[string]LatencySummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]LatencySummary, len(l.samples))
	for step, samples := range l.samples {
		sorted := slices.Clone(samples)
		slices.Sort(sorted)
		out[step] = LatencySummary{
			Count: len(sorted),
			P50:   percentile(sorted, 50),
			P95:   percentile(sorted, 95),
			P99:   percentile(sorted, 99),
			Max:   sorted[len(sorted)-1],
		}
	}
	return out
}

// percentile expects sorted to be non-empty and ascending.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (len(sorted)*p + 99) / 100
	if idx < 1 {
		idx = 1
	}
	return sorted[idx-1]
}
