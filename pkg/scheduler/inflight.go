package scheduler

import "sync"

// InFlight tracks schedules whose execution has been dispatched and not yet
// completed. TryAcquire must be an atomic check-and-add.
type InFlight interface {
	// TryAcquire marks id as running. It returns false if id is already held.
	TryAcquire(id string) bool
	Release(id string)
	Len() int
}

// MemoryInFlight is a process-local InFlight set
type MemoryInFlight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemoryInFlight creates an empty set
func NewMemoryInFlight() *MemoryInFlight {
	return &MemoryInFlight{ids: make(map[string]struct{})}
}

func (m *MemoryInFlight) TryAcquire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.ids[id]; held {
		return false
	}
	m.ids[id] = struct{}{}
	return true
}

func (m *MemoryInFlight) Release(id string) {
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
}

func (m *MemoryInFlight) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

// Contains reports whether id is held
func (m *MemoryInFlight) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.ids[id]
	return held
}
