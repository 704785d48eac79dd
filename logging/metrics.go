package logging

import (
	"sort"
	"sync"
)

// Metrics is a small named counter/gauge registry shared by the node's
// components.
type Metrics struct {
	mu     sync.Mutex
	values map[string]uint64
}

// TelemetryAdd increments key by delta.
func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.values == nil {
		m.values = make(map[string]uint64)
	}
	m.values[key] += delta
	m.mu.Unlock()
}

// TelemetryStore overwrites key with value.
func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.values == nil {
		m.values = make(map[string]uint64)
	}
	m.values[key] = value
	m.mu.Unlock()
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Keys lists metric names in sorted order.
func (m *Metrics) Keys() []string {
	snapshot := m.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
