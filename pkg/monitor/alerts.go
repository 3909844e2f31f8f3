package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// Threshold is a configurable alert rule watched against a named metric
// value (spec.md §4.8: "configurable thresholds publish Alerts on breach
// with a per-threshold cooldown").
type Threshold struct {
	Name     string
	Metric   string
	Severity model.AlertSeverity
	Limit    float64
	Cooldown time.Duration // default 5m, see DefaultCooldown
	Compare  func(value, limit float64) bool
}

// DefaultCooldown is spec.md §4.8's default per-threshold cooldown.
const DefaultCooldown = 5 * time.Minute

// GreaterThan and LessThan are the two comparison directions most
// thresholds need; Threshold.Compare defaults to GreaterThan when nil.
func GreaterThan(value, limit float64) bool { return value > limit }
func LessThan(value, limit float64) bool    { return value < limit }

// alertState tracks the last time a threshold fired, so evaluate can
// enforce its cooldown.
type alertState struct {
	lastFired time.Time
	active    *model.Alert
}

// alertRegistry evaluates thresholds against reported values and raises
// or resolves model.Alert records, honoring per-threshold cooldown.
type alertRegistry struct {
	mu         sync.Mutex
	thresholds map[string]Threshold
	state      map[string]*alertState
	now        func() time.Time
}

func newAlertRegistry(now func() time.Time) *alertRegistry {
	return &alertRegistry{
		thresholds: make(map[string]Threshold),
		state:      make(map[string]*alertState),
		now:        now,
	}
}

func (r *alertRegistry) register(t Threshold) {
	if t.Compare == nil {
		t.Compare = GreaterThan
	}
	if t.Cooldown == 0 {
		t.Cooldown = DefaultCooldown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds[t.Name] = t
}

// evaluate checks every registered threshold for metric against value and
// returns the alerts newly raised or resolved this call.
func (r *alertRegistry) evaluate(metric string, value float64) (raised []model.Alert, resolved []model.Alert) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, t := range r.thresholds {
		if t.Metric != metric {
			continue
		}
		st := r.state[name]
		if st == nil {
			st = &alertState{}
			r.state[name] = st
		}

		breached := t.Compare(value, t.Limit)
		switch {
		case breached && st.active == nil:
			if now.Sub(st.lastFired) < t.Cooldown && !st.lastFired.IsZero() {
				continue
			}
			a := model.Alert{
				ID:           "alt-" + uuid.NewString(),
				Name:         t.Name,
				Severity:     t.Severity,
				Metric:       t.Metric,
				Threshold:    t.Limit,
				CurrentValue: value,
				TriggeredAt:  now,
			}
			st.active = &a
			st.lastFired = now
			raised = append(raised, a)
		case !breached && st.active != nil:
			resolvedAt := now
			st.active.ResolvedAt = &resolvedAt
			resolved = append(resolved, *st.active)
			st.active = nil
		}
	}
	return raised, resolved
}

func (r *alertRegistry) activeAlerts() []model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Alert
	for _, st := range r.state {
		if st.active != nil {
			out = append(out, *st.active)
		}
	}
	return out
}

// DefaultThresholds mirrors the validation-failure-rate and rollback-spike
// conditions the rest of the self-learning pipeline cares most about; the
// monitor's caller may register additional thresholds via RegisterThreshold.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{
			Name:     "validation_failure_rate_high",
			Metric:   "validation_failure_rate",
			Severity: model.AlertWarning,
			Limit:    0.5,
			Compare:  GreaterThan,
		},
		{
			Name:     "rollback_spike",
			Metric:   "rollbacks_performed",
			Severity: model.AlertCritical,
			Limit:    5,
			Compare:  GreaterThan,
		},
	}
}
