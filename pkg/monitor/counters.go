package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CounterName enumerates spec.md §4.8's closed set of pipeline counters.
type CounterName string

const (
	CounterErrorsCaptured     CounterName = "errors_captured"
	CounterErrorsResolved     CounterName = "errors_resolved"
	CounterFixesProposed      CounterName = "fixes_proposed"
	CounterFixesApplied       CounterName = "fixes_applied"
	CounterFixesRejected      CounterName = "fixes_rejected"
	CounterRollbacksPerformed CounterName = "rollbacks_performed"
	CounterValidationPasses   CounterName = "validation_passes"
	CounterValidationFailures CounterName = "validation_failures"
)

var allCounters = []CounterName{
	CounterErrorsCaptured, CounterErrorsResolved,
	CounterFixesProposed, CounterFixesApplied, CounterFixesRejected,
	CounterRollbacksPerformed,
	CounterValidationPasses, CounterValidationFailures,
}

// DurationStage enumerates the three pipeline stages spec.md §4.8
// requires duration histograms for.
type DurationStage string

const (
	StageAnalysis DurationStage = "analysis"
	StageFix      DurationStage = "fix"
	StageApply    DurationStage = "apply"
)

var allStages = []DurationStage{StageAnalysis, StageFix, StageApply}

// counterSet holds the in-memory values the Monitor reports through
// Snapshot, alongside the Prometheus vector that mirrors them for the
// chi-served /metrics endpoint. in-memory is the source of truth per
// spec.md §4.8 ("records counters... in memory"); the Prometheus vector
// is a read-through mirror for external scraping.
type counterSet struct {
	mu     sync.RWMutex
	values map[CounterName]int64
	vec    *prometheus.CounterVec
}

func newCounterSet(namespace string) *counterSet {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "learning",
		Name:      "events_total",
		Help:      "Total self-learning pipeline events by counter name",
	}, []string{"counter"})

	return &counterSet{values: make(map[CounterName]int64), vec: vec}
}

func (c *counterSet) inc(name CounterName) {
	c.mu.Lock()
	c.values[name]++
	c.mu.Unlock()
	c.vec.WithLabelValues(string(name)).Inc()
}

func (c *counterSet) snapshot() map[CounterName]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[CounterName]int64, len(c.values))
	for _, n := range allCounters {
		out[n] = c.values[n]
	}
	return out
}

// durationSample is one recorded observation, kept for the retention
// window so percentiles reflect only recent activity.
type durationSample struct {
	at time.Time
	d  time.Duration
}

// DurationStats is the avg/min/max/p50/p95/p99 summary spec.md §4.8
// requires per stage.
type DurationStats struct {
	Count int
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// durationSeries tracks observations for one stage within retention,
// evicting samples older than the window on every write.
type durationSeries struct {
	mu        sync.Mutex
	retention time.Duration
	samples   []durationSample
	hist      prometheus.Observer
}

func newDurationSeries(retention time.Duration, hist prometheus.Observer) *durationSeries {
	return &durationSeries{retention: retention, hist: hist}
}

func (s *durationSeries) observe(now time.Time, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, durationSample{at: now, d: d})
	s.evict(now)
	s.hist.Observe(d.Seconds())
}

// evict must be called with s.mu held.
func (s *durationSeries) evict(now time.Time) {
	cutoff := now.Add(-s.retention)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = s.samples[i:]
	}
}

func (s *durationSeries) stats(now time.Time) DurationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(now)
	if len(s.samples) == 0 {
		return DurationStats{}
	}

	durations := make([]time.Duration, len(s.samples))
	for i, sm := range s.samples {
		durations[i] = sm.d
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	return DurationStats{
		Count: len(durations),
		Avg:   total / time.Duration(len(durations)),
		Min:   durations[0],
		Max:   durations[len(durations)-1],
		P50:   percentile(durations, 0.50),
		P95:   percentile(durations, 0.95),
		P99:   percentile(durations, 0.99),
	}
}

// percentile assumes durations is sorted ascending.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
