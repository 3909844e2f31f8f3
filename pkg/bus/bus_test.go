package bus

import (
	"context"
	"fmt"
	"log/slog"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	calls     []string
	failUntil map[string]int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{failUntil: make(map[string]int)}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, agentID string, m model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m.ID+":"+agentID)
	if f.failUntil[m.ID] > 0 {
		f.failUntil[m.ID]--
		return fmt.Errorf("simulated failure")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPhaseBasePriority(t *testing.T) {
	cases := map[int]model.Priority{0: model.PriorityHigh, 3: model.PriorityHigh, 4: model.PriorityCritical, 5: model.PriorityCritical, 6: model.PriorityNormal, 10: model.PriorityNormal, 11: model.PriorityLow}
	for phase, want := range cases {
		assert.Equal(t, want, PhaseBasePriority(phase), "phase %d", phase)
	}
}

func TestEffectivePriority_EscalationUpgradesToCritical(t *testing.T) {
	p := EffectivePriority(model.PriorityLow, model.MessageEscalation)
	assert.Equal(t, model.PriorityCritical, p)
}

func TestPublish_AssignsIDAndPriority(t *testing.T) {
	b := New(DefaultRetryPolicy(), newFakeDispatcher(), events.New(), testLogger())
	id, err := b.Publish(context.Background(), model.Message{ExecutionID: "e1", Phase: 5, Targets: []string{"a"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestPublishIdempotent_DeduplicatesSameKey(t *testing.T) {
	b := New(DefaultRetryPolicy(), newFakeDispatcher(), events.New(), testLogger())
	m := model.Message{ExecutionID: "e1", Phase: 0, Targets: []string{"a"}}
	id1, err := b.PublishIdempotent(context.Background(), m, "key-1")
	require.NoError(t, err)
	id2, err := b.PublishIdempotent(context.Background(), m, "key-1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, int64(1), b.SnapshotMetrics().Received)
}

func TestRun_ProcessesMessageSuccessfully(t *testing.T) {
	disp := newFakeDispatcher()
	b := New(DefaultRetryPolicy(), disp, events.New(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var done atomic.Bool
	go func() {
		_, _ = b.Publish(ctx, model.Message{ExecutionID: "e1", Phase: 0, Targets: []string{"agentA"}})
	}()

	go func() { _ = b.Run(ctx, 2) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.SnapshotMetrics().Processed >= 1 {
			done.Store(true)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, done.Load(), "expected message to be processed")
}

func TestHandleFailure_DeadLettersAfterMaxRetries(t *testing.T) {
	disp := newFakeDispatcher()
	policy := RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	b := New(policy, disp, events.New(), testLogger())

	m := &model.Message{ID: "m1", ExecutionID: "e1", Phase: 0, Targets: []string{"a"}}
	disp.failUntil["m1"] = 99

	ctx := context.Background()
	b.handleFailure(ctx, m, fmt.Errorf("boom"))
	time.Sleep(10 * time.Millisecond)
	b.handleFailure(ctx, m, fmt.Errorf("boom again"))

	assert.Equal(t, int64(1), b.SnapshotMetrics().DLQSize)
}

func TestRetryDead_RequeuesWithResetCount(t *testing.T) {
	b := New(DefaultRetryPolicy(), newFakeDispatcher(), events.New(), testLogger())
	m := &model.Message{ID: "dead-1", ExecutionID: "e1", Phase: 0, RetryCount: 5}
	b.dlq.push(m)

	require.NoError(t, b.RetryDead("dead-1"))
	assert.Equal(t, 0, m.RetryCount)
	assert.Equal(t, model.MessagePending, m.Status)
	assert.Equal(t, 0, b.dlq.len())
}

func TestRetryDead_UnknownIDFails(t *testing.T) {
	b := New(DefaultRetryPolicy(), newFakeDispatcher(), events.New(), testLogger())
	err := b.RetryDead("ghost")
	assert.Error(t, err)
}

func TestCancel_DropsPendingMessagesForExecution(t *testing.T) {
	b := New(DefaultRetryPolicy(), newFakeDispatcher(), events.New(), testLogger())
	_, _ = b.Publish(context.Background(), model.Message{ExecutionID: "e1", Phase: 0, Targets: []string{"a"}})
	_, _ = b.Publish(context.Background(), model.Message{ExecutionID: "e2", Phase: 0, Targets: []string{"a"}})

	b.Cancel("e1")

	total := 0
	for _, q := range b.queues {
		total += q.len()
	}
	assert.Equal(t, 1, total)
}

func TestRetryPolicy_BackoffCapsAtMax(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 4*time.Second, p.Backoff(10))
}
