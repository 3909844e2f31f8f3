package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// executionLocker serializes processing of messages belonging to the
// same execution id, preserving in-execution ordering while letting
// different executions proceed concurrently (spec §4.4, §5).
type executionLocker interface {
	Lock(ctx context.Context, executionID string) (unlock func(), err error)
}

// localLocker serializes within a single process via one mutex per
// execution id. This is the default; it is sufficient for a
// single-orchestrator deployment.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) Lock(_ context.Context, executionID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[executionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[executionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// etcdLocker serializes across multiple orchestrator processes using
// etcd's distributed mutex, for deployments running more than one bus
// instance against shared state.
type etcdLocker struct {
	client *clientv3.Client
	ttl    time.Duration
	prefix string
}

// NewEtcdLocker wraps an existing etcd client into a distributed,
// per-execution locker usable via Bus.UseEtcdLocking. The caller owns
// the client's lifecycle and must close it itself.
func NewEtcdLocker(client *clientv3.Client, ttl time.Duration, prefix string) *etcdLocker {
	return &etcdLocker{client: client, ttl: ttl, prefix: prefix}
}

func (l *etcdLocker) Lock(ctx context.Context, executionID string) (func(), error) {
	ttlSeconds := int(l.ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(ttlSeconds))
	if err != nil {
		return nil, fmt.Errorf("bus: new etcd session: %w", err)
	}

	mu := concurrency.NewMutex(session, l.prefix+"/"+executionID)
	if err := mu.Lock(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("bus: acquire etcd lock for %s: %w", executionID, err)
	}

	return func() {
		_ = mu.Unlock(context.Background())
		session.Close()
	}, nil
}
