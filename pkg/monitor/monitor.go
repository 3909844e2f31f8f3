// Package monitor implements the Monitor (spec.md §4.8): in-memory
// counters and duration histograms over a retention window, configurable
// alert thresholds with per-threshold cooldown, and a read-only HTTP
// surface for external dashboards. It is a passive observer — it
// subscribes to pkg/events and never calls back into the components it
// watches.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// DefaultRetention is spec.md §4.8's default retention window.
const DefaultRetention = 24 * time.Hour

// Config configures a Monitor.
type Config struct {
	Namespace  string
	Retention  time.Duration
	Thresholds []Threshold
}

func (c *Config) setDefaults() {
	if c.Namespace == "" {
		c.Namespace = "orchestrator"
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	if c.Thresholds == nil {
		c.Thresholds = DefaultThresholds()
	}
}

// Monitor is C8: the passive metrics/alerts/snapshot component.
type Monitor struct {
	cfg      Config
	registry *prometheus.Registry
	counters *counterSet
	stages   map[DurationStage]*durationSeries
	alerts   *alertRegistry
	now      func() time.Time

	mu          sync.Mutex
	unsubscribe []func()
}

// New constructs a Monitor and subscribes it to eventBus. If eventBus is
// nil the Monitor still functions but nothing feeds it automatically;
// callers may drive RecordX methods directly (useful in tests).
func New(cfg Config, eventBus *events.Bus) *Monitor {
	cfg.setDefaults()

	m := &Monitor{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		counters: newCounterSet(cfg.Namespace),
		stages:   make(map[DurationStage]*durationSeries),
		now:      time.Now,
	}
	m.alerts = newAlertRegistry(m.now)
	for _, t := range cfg.Thresholds {
		m.alerts.register(t)
	}

	stageHist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "learning",
		Name:      "stage_duration_seconds",
		Help:      "Self-learning pipeline stage duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"stage"})

	for _, stage := range allStages {
		m.stages[stage] = newDurationSeries(cfg.Retention, stageHist.WithLabelValues(string(stage)))
	}

	m.registry.MustRegister(m.counters.vec, stageHist)

	if eventBus != nil {
		m.subscribe(eventBus)
	}
	return m
}

func (m *Monitor) subscribe(bus *events.Bus) {
	sub := func(topic events.Topic, h events.Handler) {
		m.unsubscribe = append(m.unsubscribe, bus.Subscribe(topic, h))
	}

	sub(events.TopicErrorLogged, func(ctx context.Context, e events.Event) {
		m.IncCounter(CounterErrorsCaptured)
	})
	sub(events.TopicFixProposed, func(ctx context.Context, e events.Event) {
		m.IncCounter(CounterFixesProposed)
	})
	sub(events.TopicFixValidated, func(ctx context.Context, e events.Event) {
		if r, ok := e.Payload.(model.ValidationResult); ok {
			if r.Approved {
				m.IncCounter(CounterValidationPasses)
			} else {
				m.IncCounter(CounterValidationFailures)
				m.IncCounter(CounterFixesRejected)
			}
		}
	})
	sub(events.TopicFixApplied, func(ctx context.Context, e events.Event) {
		m.IncCounter(CounterFixesApplied)
		m.IncCounter(CounterErrorsResolved)
	})
	sub(events.TopicFixRolledBack, func(ctx context.Context, e events.Event) {
		m.IncCounter(CounterRollbacksPerformed)
	})
}

// Close unsubscribes the Monitor from its event bus.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
}

// IncCounter increments a named counter by one. Exposed for callers that
// do not route through the event bus (e.g. direct CLI invocation).
func (m *Monitor) IncCounter(name CounterName) {
	m.counters.inc(name)
}

// ObserveDuration records a stage's elapsed time. It does not evaluate
// thresholds; EvaluateRate does that.
func (m *Monitor) ObserveDuration(stage DurationStage, d time.Duration) {
	if s, ok := m.stages[stage]; ok {
		s.observe(m.now(), d)
	}
}

// Registry returns the Prometheus registry backing /metrics.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// EvaluateRate computes validation_failure_rate from the current counter
// snapshot and runs it through the alert registry, returning newly raised
// and resolved alerts. Callers (or a background ticker in cmd/orchestrator)
// invoke this periodically; the Monitor itself does not run a ticker.
func (m *Monitor) EvaluateRate() (raised, resolved []model.Alert) {
	snap := m.counters.snapshot()
	total := snap[CounterValidationPasses] + snap[CounterValidationFailures]
	var rate float64
	if total > 0 {
		rate = float64(snap[CounterValidationFailures]) / float64(total)
	}
	r1, rs1 := m.alerts.evaluate("validation_failure_rate", rate)
	r2, rs2 := m.alerts.evaluate("rollbacks_performed", float64(snap[CounterRollbacksPerformed]))
	return append(r1, r2...), append(rs1, rs2...)
}

// ActiveAlerts returns every alert currently unresolved.
func (m *Monitor) ActiveAlerts() []model.Alert {
	return m.alerts.activeAlerts()
}

// RegisterThreshold adds or replaces a threshold at runtime.
func (m *Monitor) RegisterThreshold(t Threshold) {
	m.alerts.register(t)
}

// Snapshot is the point-in-time report served at GET /snapshot.
type Snapshot struct {
	Counters  map[CounterName]int64          `json:"counters"`
	Stages    map[DurationStage]DurationStats `json:"stages"`
	Alerts    []model.Alert                  `json:"activeAlerts"`
	Retention time.Duration                  `json:"retentionWindow"`
	AsOf      time.Time                      `json:"asOf"`
}

// Snapshot returns the current counters, stage duration stats, and active
// alerts.
func (m *Monitor) Snapshot() Snapshot {
	now := m.now()
	stages := make(map[DurationStage]DurationStats, len(m.stages))
	for name, s := range m.stages {
		stages[name] = s.stats(now)
	}
	return Snapshot{
		Counters:  m.counters.snapshot(),
		Stages:    stages,
		Alerts:    m.alerts.activeAlerts(),
		Retention: m.cfg.Retention,
		AsOf:      now,
	}
}
