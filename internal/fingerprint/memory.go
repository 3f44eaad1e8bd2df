package fingerprint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/models"
)

// Memory is an in-process Store. Records do not survive a restart, so every
// first build in a new process re-runs each command once.
type Memory struct {
	mu      sync.Mutex
	records map[string]models.Fingerprint
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.Fingerprint)}
}

// Unchanged implements Store.
func (m *Memory) Unchanged(_ context.Context, target, command string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.records[Key(target)]
	return ok && fp.CommandHash == Hash(command), nil
}

// Record implements Store.
func (m *Memory) Record(_ context.Context, target, command string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(target)
	m.records[key] = models.Fingerprint{Key: key, CommandHash: Hash(command), UpdatedAt: time.Now().UTC()}
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]models.Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Fingerprint, 0, len(m.records))
	for _, fp := range m.records {
		out = append(out, fp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Forget implements Store.
func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.records, key)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
