package rollback

import (
	"context"
	"time"
)

// Baseline is the metrics snapshot captured at apply time that the
// auto-rollback monitor compares subsequent snapshots against (spec
// §4.7.6).
type Baseline struct {
	ErrorRate        float64
	NewErrorSigs     map[string]bool
	ResponseTimeMS   float64
	MemoryBytes      int64
}

// MetricsSnapshotFunc returns a current metrics snapshot in the same
// shape as Baseline, so the monitor can diff them.
type MetricsSnapshotFunc func(ctx context.Context) Baseline

// RollbackFunc is called when the monitor detects a regression; it is
// expected to call Manager.Rollback.
type RollbackFunc func(ctx context.Context, req Request) error

// AutoMonitorConfig tunes the auto-rollback monitor's window and
// thresholds (spec §4.7.6 defaults: 5 min window, 10 s checks, error
// rate +10pp, response time +20%, memory +100MiB).
type AutoMonitorConfig struct {
	Window                 time.Duration
	CheckInterval          time.Duration
	ErrorRateIncreaseTrip  float64
	ResponseTimeTripFactor float64
	MemoryIncreaseTripBytes int64
}

// DefaultAutoMonitorConfig returns the spec's defaults.
func DefaultAutoMonitorConfig() AutoMonitorConfig {
	return AutoMonitorConfig{
		Window:                  5 * time.Minute,
		CheckInterval:           10 * time.Second,
		ErrorRateIncreaseTrip:   0.10,
		ResponseTimeTripFactor:  0.20,
		MemoryIncreaseTripBytes: 100 * 1024 * 1024,
	}
}

// AutoMonitor watches a single applied change for the configured window,
// triggering a rollback request on the first regression it detects.
type AutoMonitor struct {
	cfg      AutoMonitorConfig
	snapshot MetricsSnapshotFunc
	rollback RollbackFunc
}

// NewAutoMonitor constructs an AutoMonitor.
func NewAutoMonitor(cfg AutoMonitorConfig, snapshot MetricsSnapshotFunc, rollback RollbackFunc) *AutoMonitor {
	return &AutoMonitor{cfg: cfg, snapshot: snapshot, rollback: rollback}
}

// Watch runs the monitor's check loop for changeID against baseline
// until the window elapses, ctx is cancelled, or a trigger fires (in
// which case Watch returns after the rollback attempt, successful or
// not).
func (m *AutoMonitor) Watch(ctx context.Context, changeID string, baseline Baseline) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Window)
	defer cancel()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := m.snapshot(ctx)
			if trigger, reason, fired := m.evaluate(baseline, current); fired {
				return m.rollback(ctx, Request{ChangeID: changeID, Trigger: trigger, Reason: reason})
			}
		}
	}
}

// evaluate checks current against baseline for any of the four spec
// thresholds, returning the first one that trips.
func (m *AutoMonitor) evaluate(baseline, current Baseline) (Trigger, string, bool) {
	if current.ErrorRate-baseline.ErrorRate > m.cfg.ErrorRateIncreaseTrip {
		return TriggerErrorRateIncreased, "error rate increased beyond threshold", true
	}
	for sig := range current.NewErrorSigs {
		if !baseline.NewErrorSigs[sig] {
			return TriggerNewErrorsDetected, "new error signature detected: " + sig, true
		}
	}
	if baseline.ResponseTimeMS > 0 {
		degradation := (current.ResponseTimeMS - baseline.ResponseTimeMS) / baseline.ResponseTimeMS
		if degradation > m.cfg.ResponseTimeTripFactor {
			return TriggerPerformanceDegraded, "response time degraded beyond threshold", true
		}
	}
	if current.MemoryBytes-baseline.MemoryBytes > m.cfg.MemoryIncreaseTripBytes {
		return TriggerResourceExhausted, "memory usage increased beyond threshold", true
	}
	return "", "", false
}
