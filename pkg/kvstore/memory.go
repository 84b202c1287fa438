package kvstore

import (
	"context"
	"sync"
)

// Memory is an in-process RecordStore for tests and dry runs. It honors the
// same per-key atomicity the real backends do.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailNext, when set, makes the next operation return a store error.
	// Lets tests exercise the infrastructure-failure paths.
	FailNext error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	if err := m.FailNext; err != nil {
		m.FailNext = nil
		m.mu.Unlock()
		return nil, storeErr(err)
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailNext; err != nil {
		m.FailNext = nil
		return storeErr(err)
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
