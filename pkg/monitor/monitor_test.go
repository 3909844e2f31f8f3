package monitor

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
)

func TestMonitor_SubscribesAndCountsErrorLogged(t *testing.T) {
	bus := events.New()
	m := New(Config{}, bus)

	bus.PublishSync(context.Background(), events.Event{Topic: events.TopicErrorLogged, Payload: model.ErrorLogEntry{}})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Counters[CounterErrorsCaptured])
}

func TestMonitor_ValidationResultSplitsPassAndFail(t *testing.T) {
	bus := events.New()
	m := New(Config{}, bus)

	bus.PublishSync(context.Background(), events.Event{Topic: events.TopicFixValidated, Payload: model.ValidationResult{Approved: true}})
	bus.PublishSync(context.Background(), events.Event{Topic: events.TopicFixValidated, Payload: model.ValidationResult{Approved: false}})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Counters[CounterValidationPasses])
	assert.Equal(t, int64(1), snap.Counters[CounterValidationFailures])
	assert.Equal(t, int64(1), snap.Counters[CounterFixesRejected])
}

func TestObserveDuration_ComputesPercentiles(t *testing.T) {
	m := New(Config{}, nil)
	for i := 1; i <= 10; i++ {
		m.ObserveDuration(StageAnalysis, time.Duration(i)*time.Millisecond)
	}

	stats := m.Snapshot().Stages[StageAnalysis]
	assert.Equal(t, 10, stats.Count)
	assert.Equal(t, time.Millisecond, stats.Min)
	assert.Equal(t, 10*time.Millisecond, stats.Max)
}

func TestDurationSeries_EvictsOutsideRetention(t *testing.T) {
	fakeNow := time.Now()
	series := newDurationSeries(10*time.Millisecond, noopObserver{})

	series.observe(fakeNow, time.Millisecond)
	series.observe(fakeNow.Add(20*time.Millisecond), 2*time.Millisecond)

	stats := series.stats(fakeNow.Add(20 * time.Millisecond))
	assert.Equal(t, 1, stats.Count)
}

func TestAlertRegistry_RaisesAndResolvesWithCooldown(t *testing.T) {
	now := time.Now()
	clock := &now
	r := newAlertRegistry(func() time.Time { return *clock })
	r.register(Threshold{Name: "high_fail_rate", Metric: "failure_rate", Severity: model.AlertWarning, Limit: 0.5, Cooldown: time.Minute})

	raised, resolved := r.evaluate("failure_rate", 0.9)
	require.Len(t, raised, 1)
	assert.Empty(t, resolved)
	assert.Equal(t, model.AlertWarning, raised[0].Severity)

	// Still breached; the alert is still active, so a second raise is suppressed.
	raised, _ = r.evaluate("failure_rate", 0.95)
	assert.Empty(t, raised)

	*clock = clock.Add(2 * time.Minute)
	raised, resolved = r.evaluate("failure_rate", 0.1)
	assert.Empty(t, raised)
	require.Len(t, resolved, 1)
}

func TestMonitor_EvaluateRateRaisesOnHighFailureRate(t *testing.T) {
	m := New(Config{Thresholds: []Threshold{
		{Name: "high_fail", Metric: "validation_failure_rate", Severity: model.AlertError, Limit: 0.3, Cooldown: time.Millisecond},
	}}, nil)

	m.IncCounter(CounterValidationFailures)
	m.IncCounter(CounterValidationFailures)
	m.IncCounter(CounterValidationPasses)

	raised, _ := m.EvaluateRate()
	require.Len(t, raised, 1)
	assert.Equal(t, "high_fail", raised[0].Name)
	assert.Len(t, m.ActiveAlerts(), 1)
}

func TestServer_SnapshotEndpointServesJSON(t *testing.T) {
	m := New(Config{}, nil)
	m.IncCounter(CounterErrorsCaptured)
	srv := NewServer(m)

	req := httptest.NewRequest("GET", "/snapshot", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "errors_captured")
}

func TestServer_HealthzReportsOK(t *testing.T) {
	m := New(Config{}, nil)
	srv := NewServer(m)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

type noopObserver struct{}

func (noopObserver) Observe(float64) {}
