package session

import (
	"context"
	"sync"
	"time"

	"pulse/internal/plan"
)

// MemoryStore is the in-process Store. It is the default backend and the one
// every test uses; durable deployments swap in the SQLite or Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.getOrCreateLocked(id)
	return cloneSession(sess), nil
}

func (m *MemoryStore) Append(ctx context.Context, id string, rec plan.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.getOrCreateLocked(id)
	sess.History = append(sess.History, rec)
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Counter(ctx context.Context, id, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return 0, nil
	}
	return sess.Counters[name], nil
}

func (m *MemoryStore) SetCounter(ctx context.Context, id, name string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.getOrCreateLocked(id)
	if sess.Counters == nil {
		sess.Counters = make(map[string]int)
	}
	sess.Counters[name] = value
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SaveState(ctx context.Context, in *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.getOrCreateLocked(in.ID)
	sess.Counters = copyCounters(in.Counters)
	sess.Tasks = append([]plan.Task(nil), in.Tasks...)
	sess.Platform = in.Platform
	sess.Location = in.Location
	sess.State = in.State
	sess.LastMainTick = in.LastMainTick
	sess.LastTickHistoryLen = in.LastTickHistoryLen
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Reset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	created := sess.CreatedAt
	m.sessions[id] = &Session{ID: id, CreatedAt: created, UpdatedAt: time.Now()}
	return nil
}

// getOrCreateLocked returns the live session, creating it lazily. Caller
// holds the write lock.
func (m *MemoryStore) getOrCreateLocked(id string) *Session {
	sess, ok := m.sessions[id]
	if !ok {
		now := time.Now()
		sess = &Session{ID: id, CreatedAt: now, UpdatedAt: now}
		m.sessions[id] = sess
	}
	return sess
}

// cloneSession copies the session so callers never share the store's live
// maps and slices. History records are immutable once appended, so the
// backing array copy is shallow.
func cloneSession(sess *Session) *Session {
	out := *sess
	out.History = append([]plan.StepRecord(nil), sess.History...)
	out.Tasks = append([]plan.Task(nil), sess.Tasks...)
	out.Counters = copyCounters(sess.Counters)
	return &out
}

func copyCounters(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
