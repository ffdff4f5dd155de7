// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus grades a component or the whole process.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// CheckFunc probes one dependency. It must respect the context
// deadline; the checker caps each probe at its timeout.
type CheckFunc func(ctx context.Context) CheckResult

// CheckResult is one probe's outcome.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

type healthCheck struct {
	name     string
	critical bool
	fn       CheckFunc
}

// HealthChecker runs registered probes on demand and aggregates them:
// a failing critical check makes the process unhealthy, any other
// failure degrades it.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []healthCheck
	version string
	started time.Time
	timeout time.Duration
}

func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version: version,
		started: time.Now(),
		timeout: 5 * time.Second,
	}
}

// Register adds a named probe. Critical probes gate overall health.
func (h *HealthChecker) Register(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, healthCheck{name: name, critical: critical, fn: fn})
}

// CheckEntry is one probe's outcome in a report.
type CheckEntry struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Critical bool         `json:"critical"`
	TookMS   int64        `json:"took_ms"`
}

// HealthReport is the full health document served at /health.
type HealthReport struct {
	Status    HealthStatus          `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Version   string                `json:"version,omitempty"`
	Uptime    string                `json:"uptime"`
	Checks    map[string]CheckEntry `json:"checks,omitempty"`
	System    SystemInfo            `json:"system"`
}

// SystemInfo carries process-level gauges into the report.
type SystemInfo struct {
	Goroutines int    `json:"goroutines"`
	AllocBytes uint64 `json:"alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
	GCCycles   uint32 `json:"gc_cycles"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`
}

// Run executes all probes concurrently and aggregates the report.
func (h *HealthChecker) Run(ctx context.Context) HealthReport {
	h.mu.RLock()
	checks := make([]healthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	entries := make(map[string]CheckEntry, len(checks))
	var entriesMu sync.Mutex
	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(c healthCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			result := c.fn(checkCtx)
			if result.Status == "" {
				result.Status = HealthHealthy
			}

			entriesMu.Lock()
			entries[c.name] = CheckEntry{
				Status:   result.Status,
				Message:  result.Message,
				Critical: c.critical,
				TookMS:   time.Since(start).Milliseconds(),
			}
			entriesMu.Unlock()
		}(check)
	}
	wg.Wait()

	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)

	return HealthReport{
		Status:    overallStatus(entries),
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Checks:    entries,
		System: SystemInfo{
			Goroutines: runtime.NumGoroutine(),
			AllocBytes: memory.Alloc,
			SysBytes:   memory.Sys,
			GCCycles:   memory.NumGC,
			GoVersion:  runtime.Version(),
			NumCPU:     runtime.NumCPU(),
		},
	}
}

func overallStatus(entries map[string]CheckEntry) HealthStatus {
	status := HealthHealthy
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := entries[name]
		if entry.Status == HealthUnhealthy && entry.Critical {
			return HealthUnhealthy
		}
		if entry.Status != HealthHealthy {
			status = HealthDegraded
		}
	}
	return status
}

// Handler serves the JSON report. Unhealthy responds 503 so load
// balancers and probes can act on the status code alone.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := h.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}

// DirWritableCheck probes that a directory exists (creating it if
// needed) and accepts writes.
func DirWritableCheck(dir string) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return CheckResult{Status: HealthUnhealthy, Message: err.Error()}
		}
		probe := filepath.Join(dir, ".health_probe")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			return CheckResult{Status: HealthUnhealthy, Message: err.Error()}
		}
		os.Remove(probe)
		return CheckResult{Status: HealthHealthy}
	}
}

// PingCheck adapts a dependency's ping function, for database stores.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: HealthUnhealthy, Message: err.Error()}
		}
		return CheckResult{Status: HealthHealthy}
	}
}
