package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthChecker runs registered component checks on demand.
type HealthChecker struct {
	mu         sync.RWMutex
	startTime  time.Time
	components map[string]HealthCheck
	timeout    time.Duration
}

// NewHealthChecker creates a checker whose checks share one timeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]HealthCheck),
		timeout:    timeout,
	}
}

// RegisterComponent registers a health check for a component.
func (h *HealthChecker) RegisterComponent(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = check
}

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status        HealthStatus      `json:"status"`
	Uptime        string            `json:"uptime"`
	Components    []ComponentHealth `json:"components"`
	Goroutines    int               `json:"goroutines"`
	MemoryAllocMB uint64            `json:"memory_alloc_mb"`
}

// Check runs every component check concurrently and folds the results.
func (h *HealthChecker) Check(ctx context.Context) SystemHealth {
	h.mu.RLock()
	components := make(map[string]HealthCheck, len(h.components))
	for k, v := range h.components {
		components[k] = v
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components))
	for name, check := range components {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- ComponentHealth{Name: n, Status: HealthStatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r), LastCheck: time.Now()}
				}
			}()

			start := time.Now()
			health := c(ctx)
			health.Name = n
			health.LastCheck = time.Now()
			if health.Latency == 0 {
				health.Latency = time.Since(start)
			}
			results <- health
		}(name, check)
	}
	wg.Wait()
	close(results)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	out := SystemHealth{
		Status:        HealthStatusHealthy,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: memStats.Alloc / 1024 / 1024,
	}
	for health := range results {
		out.Components = append(out.Components, health)
		switch health.Status {
		case HealthStatusUnhealthy:
			out.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if out.Status == HealthStatusHealthy {
				out.Status = HealthStatusDegraded
			}
		}
	}
	sort.Slice(out.Components, func(i, j int) bool { return out.Components[i].Name < out.Components[j].Name })
	return out
}

// DatabaseHealthCheck creates a health check for database connections.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: "database"}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Database ping failed: %v", err)
			return health
		}

		if health.Latency > 100*time.Millisecond {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Database slow: %v", health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = "Database healthy"
		return health
	}
}

// CircuitHealthCheck reports an open circuit as degraded: stored data is
// still served while the provider is held off.
func CircuitHealthCheck(cb *CircuitBreaker) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: cb.Name()}
		switch state := cb.State(); {
		case cb.IsOpen():
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Provider quota exhausted; serving stored data (%d requests held off)", cb.Stats().TotalRejected)
		case state == CircuitHalfOpen:
			health.Status = HealthStatusDegraded
			health.Message = "Probing provider quota"
		default:
			health.Status = HealthStatusHealthy
			health.Message = "Provider quota available"
		}
		return health
	}
}
