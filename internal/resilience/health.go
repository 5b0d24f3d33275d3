package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

// Score maps a status onto the health_status gauge: 1 healthy, 0.5 degraded, 0 otherwise.
func (s HealthStatus) Score() float64 {
	switch s {
	case HealthStatusHealthy:
		return 1
	case HealthStatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthMonitor aggregates component health checks.
type HealthMonitor struct {
	mu                 sync.RWMutex
	startTime          time.Time
	components         map[string]HealthCheck
	goroutineThreshold int
	timeout            time.Duration
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		startTime:          time.Now(),
		components:         make(map[string]HealthCheck),
		goroutineThreshold: 1000,
		timeout:            10 * time.Second,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// Check runs every registered check concurrently and aggregates the result.
// Any unhealthy component makes the system unhealthy; any degraded one
// makes it degraded.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components)+1)

	for name, check := range components {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- ComponentHealth{
						Name:      n,
						Status:    HealthStatusUnhealthy,
						Message:   fmt.Sprintf("Panic recovered: %v", r),
						LastCheck: time.Now(),
					}
				}
			}()

			start := time.Now()
			health := c(ctx)
			health.Name = n
			health.LastCheck = time.Now()
			health.Latency = time.Since(start)
			results <- health
		}(name, check)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- m.checkGoroutines()
	}()

	wg.Wait()
	close(results)

	health := SystemHealth{
		Status:     HealthStatusHealthy,
		Uptime:     time.Since(m.startTime),
		Goroutines: runtime.NumGoroutine(),
	}
	for c := range results {
		health.Components = append(health.Components, c)
		switch c.Status {
		case HealthStatusUnhealthy:
			health.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		}
	}
	sort.Slice(health.Components, func(i, j int) bool {
		return health.Components[i].Name < health.Components[j].Name
	})
	return health
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	n := runtime.NumGoroutine()
	health := ComponentHealth{
		Name:      "goroutines",
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("Goroutine count: %d", n),
		LastCheck: time.Now(),
		Details:   map[string]interface{}{"count": n},
	}
	if n > m.goroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High goroutine count: %d", n)
	}
	return health
}

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     time.Duration     `json:"uptime"`
	Components []ComponentHealth `json:"components"`
	Goroutines int               `json:"goroutines"`
}

// HealthHTTPHandler returns an HTTP handler for health checks.
func (m *HealthMonitor) HealthHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := m.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	}
}

// BreakerHealthCheck reports degraded while any breaker is open or probing,
// and unhealthy once every registered breaker is open.
func BreakerHealthCheck(registry *CircuitBreakerRegistry) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := registry.AllStats()
		health := ComponentHealth{
			Name:    "circuit_breakers",
			Status:  HealthStatusHealthy,
			Details: make(map[string]interface{}, len(stats)),
		}

		open := 0
		notClosed := 0
		for _, s := range stats {
			health.Details[s.Name] = string(s.State)
			if s.State != CircuitClosed {
				notClosed++
			}
			if s.State == CircuitOpen {
				open++
			}
		}

		switch {
		case len(stats) > 0 && open == len(stats):
			health.Status = HealthStatusUnhealthy
			health.Message = "All upstream circuits open"
		case notClosed > 0:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("%d of %d circuits not closed", notClosed, len(stats))
		default:
			health.Message = fmt.Sprintf("%d circuits closed", len(stats))
		}
		return health
	}
}

// DatabaseHealthCheck creates a health check for database connections.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: "database"}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		switch {
		case err != nil:
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Database ping failed: %v", err)
		case health.Latency > 100*time.Millisecond:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Database slow: %v", health.Latency)
		default:
			health.Status = HealthStatusHealthy
			health.Message = fmt.Sprintf("Database healthy: %v", health.Latency)
		}
		return health
	}
}
