package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	status  string
	expires time.Time
}

// MemoryStore is the single-process IdempotencyStore used when no Redis address is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// lookup returns the live entry for k, dropping it if expired. Callers hold mu.
func (m *MemoryStore) lookup(k string) (memoryEntry, bool) {
	e, ok := m.entries[k]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, k)
		return memoryEntry{}, false
	}
	return e, ok
}

func (m *MemoryStore) CheckOrSetInProgress(ctx context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(txHash)
	if e, ok := m.lookup(k); ok {
		if e.status == StatusCompleted {
			return true, nil
		}
		return true, ErrInProgress
	}
	m.entries[k] = memoryEntry{status: StatusInProgress, expires: m.now().Add(InProgressExpiry)}
	return false, nil
}

func (m *MemoryStore) SetCompleted(ctx context.Context, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key(txHash)] = memoryEntry{status: StatusCompleted, expires: m.now().Add(CompletedExpiry)}
	return nil
}

func (m *MemoryStore) CheckCompleted(ctx context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key(txHash))
	return ok && e.status == StatusCompleted, nil
}

func (m *MemoryStore) Release(ctx context.Context, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(txHash)
	if e, ok := m.lookup(k); ok && e.status == StatusInProgress {
		delete(m.entries, k)
	}
	return nil
}
