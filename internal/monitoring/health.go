package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health check status constants
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// HealthCheckFunc defines a health check function
type HealthCheckFunc func(context.Context) *CheckResult

// CheckResult represents the result of a health check
type CheckResult struct {
	Status      string    `json:"status"`
	Component   string    `json:"component"`
	LastChecked time.Time `json:"last_checked"`
	Error       string    `json:"error,omitempty"`
}

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Components map[string]*CheckResult `json:"components"`
	Timestamp  time.Time               `json:"timestamp"`
}

// HealthChecker manages system health checks
type HealthChecker struct {
	checks map[string]HealthCheckFunc
	mu     sync.RWMutex
}

// NewHealthChecker creates a checker with the database check registered.
func NewHealthChecker(db *sql.DB) *HealthChecker {
	hc := &HealthChecker{
		checks: make(map[string]HealthCheckFunc),
	}
	hc.Register("database", func(ctx context.Context) *CheckResult {
		result := &CheckResult{
			Component:   "database",
			Status:      StatusUp,
			LastChecked: time.Now(),
		}
		if err := db.PingContext(ctx); err != nil {
			result.Status = StatusDown
			result.Error = err.Error()
		}
		return result
	})
	return hc
}

// Register adds a named health check.
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check runs all registered checks.
func (hc *HealthChecker) Check(ctx context.Context) *SystemHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	health := &SystemHealth{
		Status:     StatusUp,
		Components: make(map[string]*CheckResult),
		Timestamp:  time.Now(),
	}

	for name, check := range hc.checks {
		result := check(ctx)
		health.Components[name] = result
		if result.Status == StatusDown {
			health.Status = StatusDown
		}
	}

	return health
}

// Handler serves the health endpoint; 503 when any component is down.
func (hc *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
