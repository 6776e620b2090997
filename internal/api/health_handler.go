package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ignite/phishsim/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type dependency struct {
	name     string
	critical bool
	slow     time.Duration
	ping     PingFunc
}

// HealthChecker runs the registered dependency checks concurrently.
type HealthChecker struct {
	deps      []dependency
	startTime time.Time
}

const healthVersion = "1.0.0"

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{startTime: time.Now()}
}

// Register adds a dependency. A failing critical dependency makes the service
// unhealthy; a failing non-critical one only degrades it. Responses slower
// than slow are reported as degraded.
func (hc *HealthChecker) Register(name string, critical bool, slow time.Duration, ping PingFunc) {
	hc.deps = append(hc.deps, dependency{name: name, critical: critical, slow: slow, ping: ping})
}

// HandleHealth returns the status of all components. Always 200; the body
// carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  overall,
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness reports that the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) run(ctx context.Context) (map[string]ComponentCheck, string) {
	checks := make(map[string]ComponentCheck, len(hc.deps))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range hc.deps {
		wg.Add(1)
		go func(p dependency) {
			defer wg.Done()
			c := checkDependency(ctx, p)
			mu.Lock()
			checks[p.name] = c
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	overall := "healthy"
	names := make([]string, 0, len(hc.deps))
	critical := make(map[string]bool, len(hc.deps))
	for _, p := range hc.deps {
		names = append(names, p.name)
		critical[p.name] = p.critical
	}
	sort.Strings(names)
	for _, name := range names {
		switch c := checks[name]; {
		case c.Status == "down" && critical[name]:
			return checks, "unhealthy"
		case c.Status != "up":
			overall = "degraded"
		}
	}
	return checks, overall
}

func checkDependency(ctx context.Context, p dependency) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if p.slow > 0 && latency > p.slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
