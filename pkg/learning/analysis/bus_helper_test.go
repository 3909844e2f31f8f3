package analysis

import (
	"context"
	"sync"
	"testing"

	"github.com/forgeflow/orchestrator/pkg/events"
)

type testBus struct {
	bus      *events.Bus
	mu       sync.Mutex
	payloads []any
	done     chan struct{}
}

func newTestBus() *testBus {
	b := events.New()
	tb := &testBus{bus: b, done: make(chan struct{}, 16)}
	b.Subscribe(events.TopicPatternDetected, func(ctx context.Context, e events.Event) {
		tb.mu.Lock()
		tb.payloads = append(tb.payloads, e.Payload)
		tb.mu.Unlock()
		tb.done <- struct{}{}
	})
	return tb
}

func (tb *testBus) wait(t *testing.T) {
	t.Helper()
	<-tb.done
}
