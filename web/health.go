package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/acryldata/datahub-monitors/core"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status              HealthStatus           `json:"status"`
	Timestamp           time.Time              `json:"timestamp"`
	Uptime              float64                `json:"uptime_seconds"`
	Version             string                 `json:"version"`
	ScheduledAssertions int                    `json:"scheduled_assertions"`
	Checks              map[string]HealthCheck `json:"checks"`
	System              SystemInfo             `json:"system"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"goroutines"`
	NumCPU       int    `json:"cpus"`
	MemoryAlloc  uint64 `json:"memory_alloc_bytes"`
	MemoryTotal  uint64 `json:"memory_total_bytes"`
	GCRuns       uint32 `json:"gc_runs"`
}

// HealthChecker performs health checks
type HealthChecker struct {
	startTime     time.Time
	scheduler     *core.AssertionScheduler
	version       string
	checks        map[string]HealthCheck
	mu            sync.RWMutex
	checkInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(scheduler *core.AssertionScheduler, version string) *HealthChecker {
	hc := &HealthChecker{
		startTime:     time.Now(),
		scheduler:     scheduler,
		version:       version,
		checks:        make(map[string]HealthCheck),
		checkInterval: 30 * time.Second,
		stopCh:        make(chan struct{}),
	}

	// Start background health checks
	go hc.runPeriodicChecks()

	return hc
}

// Stop terminates the periodic checks.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
}

// runPeriodicChecks runs health checks periodically
func (hc *HealthChecker) runPeriodicChecks() {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	// Run initial checks
	hc.performAllChecks()

	for {
		select {
		case <-hc.stopCh:
			return
		case <-ticker.C:
			hc.performAllChecks()
		}
	}
}

// performAllChecks executes all health checks
func (hc *HealthChecker) performAllChecks() {
	hc.checkScheduler()
	hc.checkSystemResources()
}

// checkScheduler verifies the assertion scheduler is operational
func (hc *HealthChecker) checkScheduler() {
	start := time.Now()
	check := HealthCheck{
		Name:        "scheduler",
		LastChecked: start,
	}

	if hc.scheduler == nil {
		check.Status = HealthStatusUnhealthy
		check.Message = "Scheduler not initialized"
	} else if !hc.scheduler.IsRunning() {
		check.Status = HealthStatusUnhealthy
		check.Message = "Scheduler is not running"
	} else {
		check.Status = HealthStatusHealthy
		check.Message = "Scheduler is operational"
	}

	check.Duration = time.Since(start)

	hc.mu.Lock()
	hc.checks["scheduler"] = check
	hc.mu.Unlock()
}

// checkSystemResources checks system resource usage
func (hc *HealthChecker) checkSystemResources() {
	start := time.Now()
	check := HealthCheck{
		Name:        "system",
		LastChecked: start,
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Check memory usage
	memoryUsagePercent := float64(m.Alloc) / float64(m.Sys) * 100

	if memoryUsagePercent > 90 {
		check.Status = HealthStatusUnhealthy
		check.Message = "Memory usage critical"
	} else if memoryUsagePercent > 75 {
		check.Status = HealthStatusDegraded
		check.Message = "Memory usage high"
	} else {
		check.Status = HealthStatusHealthy
		check.Message = "System resources normal"
	}

	check.Duration = time.Since(start)

	hc.mu.Lock()
	hc.checks["system"] = check
	hc.mu.Unlock()
}

// GetHealth returns the current health status
func (hc *HealthChecker) GetHealth() HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck)
	for k, v := range hc.checks {
		checks[k] = v
	}
	hc.mu.RUnlock()

	// Determine overall status
	status := HealthStatusHealthy
	for _, check := range checks {
		if check.Status == HealthStatusUnhealthy {
			status = HealthStatusUnhealthy
			break
		} else if check.Status == HealthStatusDegraded && status == HealthStatusHealthy {
			status = HealthStatusDegraded
		}
	}

	scheduled := 0
	if hc.scheduler != nil {
		scheduled = len(hc.scheduler.ScheduledURNs())
	}

	// Get system info
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return HealthResponse{
		Status:              status,
		Timestamp:           time.Now(),
		Uptime:              time.Since(hc.startTime).Seconds(),
		Version:             hc.version,
		ScheduledAssertions: scheduled,
		Checks:              checks,
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemoryAlloc:  m.Alloc,
			MemoryTotal:  m.Sys,
			GCRuns:       m.NumGC,
		},
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Liveness just checks if the service is running
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns readiness status
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hc.GetHealth()

		// Set appropriate status code
		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(health)
	}
}

// HealthHandler returns detailed health information
func (hc *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hc.GetHealth()

		// Always return 200 for health endpoint (monitoring tools expect this)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(health)
	}
}
