package storage

import "sync"

// Memory is an in-process Adapter. It backs unit tests and acts as the
// fake for anything that takes an Adapter.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites forces Set/Remove to fail, for error-path tests.
	FailWrites bool
	// FailReads forces Get to fail.
	FailReads bool
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailReads {
		return nil, false, ErrRead
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWrite
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWrite
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Corrupt flips one byte of the stored value, used by recovery tests.
// Reports false when the key is absent or empty.
func (m *Memory) Corrupt(key string, offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok || len(v) == 0 || offset >= len(v) {
		return false
	}
	v[offset] ^= 0xff
	return true
}
