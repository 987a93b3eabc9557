package incremental

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu         sync.RWMutex
	watermarks map[string]time.Time
	runs       map[string][]RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watermarks: map[string]time.Time{}, runs: map[string][]RunRecord{}}
}

func (m *MemoryStore) Watermark(_ context.Context, category string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.watermarks[category]
	return at, ok, nil
}

func (m *MemoryStore) Commit(_ context.Context, category, _ string, at time.Time) error {
	m.mu.Lock()
	m.watermarks[category] = at
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecordRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	m.runs[rec.Category] = append(m.runs[rec.Category], rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Runs(_ context.Context, category string, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.runs[category]
	out := make([]RunRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
