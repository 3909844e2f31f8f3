package bus

import (
	"sync"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// fifo is a single priority class's FIFO queue. A Message never sits in
// more than one of these at a time and never in both a queue and the DLQ
// simultaneously (spec §3 invariant); Bus is the only thing that moves a
// message between the two.
type fifo struct {
	mu    sync.Mutex
	items []*model.Message
}

func newFIFO() *fifo {
	return &fifo{}
}

func (f *fifo) push(m *model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, m)
}

// pushFront re-queues m ahead of everything else already waiting, used
// for DLQ requeues so a manually retried message doesn't wait behind a
// full queue's worth of newer traffic.
func (f *fifo) pushFront(m *model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]*model.Message{m}, f.items...)
}

func (f *fifo) pop() (*model.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return nil, false
	}
	m := f.items[0]
	f.items = f.items[1:]
	return m, true
}

func (f *fifo) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// removeExecution drops every queued message for executionID, used when
// an execution is cancelled (spec §4.4 "the bus drops pending messages
// for that execution").
func (f *fifo) removeExecution(executionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	dropped := 0
	for _, m := range f.items {
		if m.ExecutionID == executionID {
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	f.items = kept
	return dropped
}
