package resilience

import (
	"sort"
	"sync"
	"time"
)

// ServiceStatus represents the status of an external service.
type ServiceStatus struct {
	Name        string        `json:"name"`
	Available   bool          `json:"available"`
	LastCheck   time.Time     `json:"last_check"`
	LastSuccess *time.Time    `json:"last_success,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Latency     time.Duration `json:"latency"`
	Calls       int64         `json:"calls"`
	Failures    int64         `json:"failures"`
}

// ServiceMonitor monitors external service availability.
type ServiceMonitor struct {
	mu       sync.RWMutex
	services map[string]*ServiceStatus
	now      func() time.Time
}

// NewServiceMonitor creates a new service monitor.
func NewServiceMonitor() *ServiceMonitor {
	return &ServiceMonitor{
		services: make(map[string]*ServiceStatus),
		now:      time.Now,
	}
}

// UpdateStatus records the outcome of one call to a service.
func (m *ServiceMonitor) UpdateStatus(name string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.services[name]
	if !ok {
		status = &ServiceStatus{Name: name}
		m.services[name] = status
	}

	now := m.now()
	status.Available = err == nil
	status.LastCheck = now
	status.Latency = latency
	status.Calls++
	if err != nil {
		status.LastError = err.Error()
		status.Failures++
		return
	}
	status.LastError = ""
	status.LastSuccess = &now
}

// GetStatus returns a copy of the status of a service.
func (m *ServiceMonitor) GetStatus(name string) (ServiceStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status, ok := m.services[name]; ok {
		return *status, true
	}
	return ServiceStatus{}, false
}

// AllStatuses returns all service statuses ordered by name.
func (m *ServiceMonitor) AllStatuses() []ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServiceStatus, 0, len(m.services))
	for _, s := range m.services {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// IsAvailable checks if a service is available.
func (m *ServiceMonitor) IsAvailable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status, ok := m.services[name]; ok {
		return status.Available
	}
	return false
}
