// Package bus implements the Phase-Aware Message Bus (spec §4.4): four
// strict-priority FIFO queues, a bounded worker pool, exponential
// backoff retry with dead-lettering, and per-execution serialization.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// Dispatcher invokes a single target agent for a message. Bus never
// interprets the envelope it builds; that stays the agent's business
// (spec §1).
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, m model.Message) error
}

// Metrics mirrors the bus's metrics() operation (spec §4.4).
type Metrics struct {
	Received  int64
	Processed int64
	Failed    int64
	Retried   int64
	DLQSize   int64
	QueueDepths map[string]int
	Transitions int64
	ApprovalGates int64
}

// Bus is the single dispatcher described by spec §4.4.
type Bus struct {
	queues     [4]*fifo // indexed by model.Priority
	dlq        fifo
	retry      RetryPolicy
	dispatcher Dispatcher
	locker     executionLocker
	bus        *events.Bus
	logger     *slog.Logger

	cond    *sync.Cond
	mu      sync.Mutex
	pending map[string]*model.Message // id -> message, every accepted id; used to reject a re-publish
	cancelled map[string]bool
	seenIdempotencyKeys map[string]string // idempotency key -> message id

	received, processed, failed, retriedCount, transitions, approvalGates atomic.Int64
}

// New constructs a Bus with the local (in-process) execution locker.
func New(retry RetryPolicy, dispatcher Dispatcher, bus *events.Bus, logger *slog.Logger) *Bus {
	b := &Bus{
		retry:      retry,
		dispatcher: dispatcher,
		locker:     newLocalLocker(),
		bus:        bus,
		logger:     logger,
		pending:    make(map[string]*model.Message),
		cancelled:  make(map[string]bool),
		seenIdempotencyKeys: make(map[string]string),
	}
	for i := range b.queues {
		b.queues[i] = newFIFO()
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// UseEtcdLocking switches the bus to etcd-backed distributed locking for
// per-execution serialization, for deployments with more than one bus
// instance sharing state (spec §5).
func (b *Bus) UseEtcdLocking(locker executionLocker) {
	b.locker = locker
}

// PhaseBasePriority maps a phase index to its fixed base priority (spec
// §4.4: "0,1,2,3 -> HIGH; 4,5 -> CRITICAL; 6-10 -> NORMAL; 11 -> LOW").
func PhaseBasePriority(phase int) model.Priority {
	switch {
	case phase >= 0 && phase <= 3:
		return model.PriorityHigh
	case phase == 4 || phase == 5:
		return model.PriorityCritical
	case phase >= 6 && phase <= 10:
		return model.PriorityNormal
	case phase == 11:
		return model.PriorityLow
	default:
		return model.PriorityNormal
	}
}

// Publish enqueues m onto the priority queue its computed EffectivePriority
// resolves to, and returns its assigned id.
func (b *Bus) Publish(ctx context.Context, m model.Message) (string, error) {
	return b.publish(ctx, m, "")
}

// PublishIdempotent behaves like Publish, except a second call with the
// same idempotencyKey returns the id of the message already enqueued
// instead of enqueuing a duplicate.
func (b *Bus) PublishIdempotent(ctx context.Context, m model.Message, idempotencyKey string) (string, error) {
	if idempotencyKey == "" {
		return "", fmt.Errorf("bus: idempotency key cannot be empty")
	}
	return b.publish(ctx, m, idempotencyKey)
}

func (b *Bus) publish(_ context.Context, m model.Message, idempotencyKey string) (string, error) {
	b.mu.Lock()
	if idempotencyKey != "" {
		if existingID, ok := b.seenIdempotencyKeys[idempotencyKey]; ok {
			b.mu.Unlock()
			return existingID, nil
		}
	}
	b.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Priority = EffectivePriority(PhaseBasePriority(m.Phase), m.Type)
	m.Status = model.MessagePending
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	b.mu.Lock()
	if _, seen := b.pending[m.ID]; seen {
		b.mu.Unlock()
		return "", fmt.Errorf("bus: message id %s already published", m.ID)
	}
	if idempotencyKey != "" {
		b.seenIdempotencyKeys[idempotencyKey] = m.ID
	}
	b.pending[m.ID] = &m
	b.mu.Unlock()

	b.received.Add(1)
	b.enqueue(&m)

	b.bus.Publish(context.Background(), events.Event{Topic: events.TopicMessagePublished, Payload: m})
	return m.ID, nil
}

// EffectivePriority re-exports model.EffectivePriority for callers that
// only import the bus package.
func EffectivePriority(basePriority model.Priority, t model.MessageType) model.Priority {
	return model.EffectivePriority(basePriority, t)
}

// enqueue pushes m onto its priority queue and wakes any worker blocked
// in waitForWork. The broadcast is done under b.mu so it can never race
// ahead of a worker's check-then-wait sequence and get lost.
func (b *Bus) enqueue(m *model.Message) {
	b.queues[m.Priority].push(m)
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Cancel drops every pending message for executionID and marks the
// execution so any in-flight completion for it is ignored (spec §4.4).
func (b *Bus) Cancel(executionID string) {
	b.mu.Lock()
	b.cancelled[executionID] = true
	b.mu.Unlock()

	for _, q := range b.queues {
		q.removeExecution(executionID)
	}
}

func (b *Bus) isCancelled(executionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled[executionID]
}

// popHighest returns the highest-priority non-empty queue's next
// message, draining CRITICAL strictly before HIGH, HIGH before NORMAL,
// NORMAL before LOW (spec §4.4).
func (b *Bus) popHighest() (*model.Message, bool) {
	for p := model.PriorityCritical; p >= model.PriorityLow; p-- {
		if m, ok := b.queues[p].pop(); ok {
			return m, true
		}
	}
	return nil, false
}

// Run starts workerCount worker goroutines that drain the priority
// queues until ctx is cancelled. Run blocks until every worker exits.
func (b *Bus) Run(ctx context.Context, workerCount int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		g.Go(func() error {
			return b.workerLoop(ctx)
		})
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	}()

	return g.Wait()
}

func (b *Bus) workerLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		m, ok := b.popHighest()
		if !ok {
			b.waitForWork(ctx)
			continue
		}

		b.process(ctx, m)
	}
}

func (b *Bus) waitForWork(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	allEmpty := true
	for _, q := range b.queues {
		if q.len() > 0 {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		b.cond.Wait()
	}
}

func (b *Bus) process(ctx context.Context, m *model.Message) {
	if b.isCancelled(m.ExecutionID) {
		return
	}

	unlock, err := b.locker.Lock(ctx, m.ExecutionID)
	if err != nil {
		b.logger.Error("bus: failed to acquire execution lock", "execution", m.ExecutionID, "error", err)
		b.enqueue(m)
		return
	}
	defer unlock()

	if b.isCancelled(m.ExecutionID) {
		return
	}

	m.Status = model.MessageProcessing
	err = b.deliverToAllTargets(ctx, m)
	if err == nil {
		m.Status = model.MessageCompleted
		b.processed.Add(1)
		b.bus.Publish(ctx, events.Event{Topic: events.TopicMessagePublished, Payload: *m})
		return
	}

	b.handleFailure(ctx, m, err)
}

// deliverToAllTargets invokes the dispatcher for every resolved target;
// the message is only completed if all targets succeed (spec §4.4).
func (b *Bus) deliverToAllTargets(ctx context.Context, m *model.Message) error {
	for _, target := range m.Targets {
		if err := b.dispatcher.Dispatch(ctx, target, *m); err != nil {
			return fmt.Errorf("target %s: %w", target, err)
		}
	}
	return nil
}

func (b *Bus) handleFailure(ctx context.Context, m *model.Message, cause error) {
	b.failed.Add(1)
	m.LastError = cause.Error()
	m.RetryCount++

	if b.retry.ExceedsRetries(m.RetryCount) {
		b.deadLetter(ctx, m)
		return
	}

	m.Status = model.MessageRetrying
	delay := b.retry.Backoff(m.RetryCount)
	m.NextAttemptAt = time.Now().UTC().Add(delay)
	b.retriedCount.Add(1)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		if b.isCancelled(m.ExecutionID) {
			return
		}
		m.Status = model.MessagePending
		b.enqueue(m)
	}()

	b.bus.Publish(ctx, events.Event{Topic: events.TopicMessageFailed, Payload: *m})
}

func (b *Bus) deadLetter(ctx context.Context, m *model.Message) {
	m.Status = model.MessageDeadLettered
	b.dlq.push(m)

	b.bus.Publish(ctx, events.Event{Topic: events.TopicMessageDeadLetter, Payload: *m})

	escalation := model.Message{
		ExecutionID: m.ExecutionID,
		Phase:       m.Phase,
		Type:        model.MessageEscalation,
		Priority:    model.PriorityCritical,
		Payload:     map[string]any{"originalMessageId": m.ID, "reason": "retries_exceeded"},
		CreatedAt:   time.Now().UTC(),
		Status:      model.MessagePending,
	}
	if _, err := b.Publish(ctx, escalation); err != nil {
		b.logger.Error("bus: failed to publish escalation for dead-lettered message", "message", m.ID, "error", err)
	}
}

// RetryDead moves a DLQ entry back to its original priority queue with
// retry count reset (spec §4.4 retryDead).
func (b *Bus) RetryDead(messageID string) error {
	b.dlq.mu.Lock()
	var found *model.Message
	for i, m := range b.dlq.items {
		if m.ID == messageID {
			found = m
			b.dlq.items = append(b.dlq.items[:i], b.dlq.items[i+1:]...)
			break
		}
	}
	b.dlq.mu.Unlock()

	if found == nil {
		return fmt.Errorf("bus: message %s not found in dead letter queue", messageID)
	}

	found.RetryCount = 0
	found.Status = model.MessagePending
	found.Priority = EffectivePriority(PhaseBasePriority(found.Phase), found.Type)
	b.queues[found.Priority].pushFront(found)
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
	return nil
}

// SnapshotMetrics returns the bus's current metrics (spec §4.4 metrics()).
func (b *Bus) SnapshotMetrics() Metrics {
	depths := make(map[string]int, 4)
	for p := model.PriorityLow; p <= model.PriorityCritical; p++ {
		depths[p.String()] = b.queues[p].len()
	}
	return Metrics{
		Received:    b.received.Load(),
		Processed:   b.processed.Load(),
		Failed:      b.failed.Load(),
		Retried:     b.retriedCount.Load(),
		DLQSize:     int64(b.dlq.len()),
		QueueDepths: depths,
		Transitions: b.transitions.Load(),
		ApprovalGates: b.approvalGates.Load(),
	}
}

// RecordTransition increments the transitions-counted metric; called by
// the Phase Controller when it observes a phase transition.
func (b *Bus) RecordTransition() {
	b.transitions.Add(1)
}

// RecordApprovalGate increments the approval-gates-counted metric.
func (b *Bus) RecordApprovalGate() {
	b.approvalGates.Add(1)
}
