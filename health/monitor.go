package health

import (
	"slices"
	"sync"
	"time"

	"github.com/c360/visionflow/operation"
)

// Monitor tracks the health of named operations. It implements
// operation.Observer so it can follow state changes directly.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// StateChanged implements operation.Observer
func (m *Monitor) StateChanged(ev operation.StateEvent) {
	st := FromState(ev.Operation, ev.To, ev.Err)
	st.Timestamp = ev.Time
	m.Update(ev.Operation, st)
}

// Update updates the health status for a named operation
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the health status for a named operation
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.statuses[name]
	return status, exists
}

// Remove removes an operation from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
}

// Names returns the monitored names in sorted order
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AggregateHealth returns the aggregated status of every monitored operation,
// sub-statuses sorted by name
func (m *Monitor) AggregateHealth(systemName string) Status {
	names := m.Names()

	m.mu.RLock()
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		if st, ok := m.statuses[name]; ok {
			subs = append(subs, st)
		}
	}
	m.mu.RUnlock()

	return Aggregate(systemName, subs)
}
