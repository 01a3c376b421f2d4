// Package netmon tracks connectivity as a single boolean and notifies
// subscribers only on transitions, so observers cannot be flooded by
// steady-state polling.
package netmon

import (
	"log/slog"
	"sync"
)

// Monitor holds the connectivity flag. The host feeds it through
// SetOnline (directly, or via a Prober).
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// New creates a monitor with the given initial status. No notification
// is emitted for the initial value.
func New(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

// Status reports the current connectivity flag.
func (m *Monitor) Status() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates the flag. Subscribers are invoked synchronously,
// and only when the value actually changed.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	slog.Debug("connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers an edge-triggered callback and returns the
// unsubscribe func. Callbacks run on the goroutine that called SetOnline.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
