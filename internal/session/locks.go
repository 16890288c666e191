package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LockPolicy selects what happens when a reaction arrives while another is
// in flight for the same session.
type LockPolicy int

const (
	// Reject fails contending callers with ErrSessionBusy. Default.
	Reject LockPolicy = iota
	// Wait queues contending callers on the per-session semaphore.
	Wait
)

// Locker is the per-session mutual exclusion contract. The in-process Locks
// implements it; a cross-process deployment swaps in the Redis-backed locker
// with the same semantics.
type Locker interface {
	// Acquire takes the session's exclusive token according to the policy.
	// Under Reject a held token fails immediately with ErrSessionBusy.
	Acquire(ctx context.Context, id string, policy LockPolicy) error

	// TryAcquire takes the token only if it is free. Heartbeat ticks use
	// this so a slow reaction makes the tick skip, not queue.
	TryAcquire(id string) bool

	// Release returns the token.
	Release(id string)
}

// Locks is the in-process keyed lock manager: one binary semaphore per
// session id, created lazily, never a process-wide lock.
type Locks struct {
	mu   sync.Mutex
	held map[string]*semaphore.Weighted
}

// NewLocks creates an empty lock manager.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]*semaphore.Weighted)}
}

func (l *Locks) sem(id string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.held[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.held[id] = sem
	}
	return sem
}

func (l *Locks) Acquire(ctx context.Context, id string, policy LockPolicy) error {
	sem := l.sem(id)
	switch policy {
	case Wait:
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire session lock %s: %w", id, err)
		}
		return nil
	default:
		if !sem.TryAcquire(1) {
			return fmt.Errorf("%w: %s", ErrSessionBusy, id)
		}
		return nil
	}
}

func (l *Locks) TryAcquire(id string) bool {
	return l.sem(id).TryAcquire(1)
}

func (l *Locks) Release(id string) {
	l.sem(id).Release(1)
}
