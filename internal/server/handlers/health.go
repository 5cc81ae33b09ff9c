package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/ragly/xpanel/internal/metrics"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// CheckHealth calls f(ctx).
func (f HealthCheckFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// Probe names a Kubernetes-style health endpoint.
type Probe string

const (
	ProbeLive      Probe = "live"
	ProbeReady     Probe = "ready"
	ProbeStartup   Probe = "startup"
	ProbeAggregate Probe = "aggregate"
)

var probeTimeouts = map[Probe]time.Duration{
	ProbeLive:      2 * time.Second,
	ProbeReady:     5 * time.Second,
	ProbeStartup:   3 * time.Second,
	ProbeAggregate: 5 * time.Second,
}

// CheckOption adjusts how a registered checker is evaluated.
type CheckOption func(*registeredCheck)

// Optional makes a failing check report "degraded" instead of failing the
// probe.
func Optional() CheckOption {
	return func(c *registeredCheck) { c.optional = true }
}

// ForProbes limits a check to the given probes. Without it a check runs for
// every probe except liveness.
func ForProbes(probes ...Probe) CheckOption {
	return func(c *registeredCheck) {
		c.probes = make(map[Probe]bool, len(probes))
		for _, p := range probes {
			c.probes[p] = true
		}
	}
}

type registeredCheck struct {
	name     string
	checker  HealthChecker
	optional bool
	probes   map[Probe]bool
}

func (c registeredCheck) appliesTo(p Probe) bool {
	if c.probes == nil {
		return p != ProbeLive
	}
	return c.probes[p]
}

// HealthManager manages health checks and probe states
type HealthManager struct {
	mu      sync.RWMutex
	checks  []registeredCheck
	version string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version}
}

// RegisterChecker registers a health checker. Registering a name twice
// replaces the earlier checker.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker, opts ...CheckOption) {
	check := registeredCheck{name: name, checker: checker}
	for _, opt := range opts {
		opt(&check)
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	for i := range hm.checks {
		if hm.checks[i].name == name {
			hm.checks[i] = check
			return
		}
	}
	hm.checks = append(hm.checks, check)
}

// runHealthChecks executes the checks that apply to probe, in registration
// order. Checks not reached before ctx expires are reported as "timeout".
func (hm *HealthManager) runHealthChecks(ctx context.Context, probe Probe) map[string]string {
	hm.mu.RLock()
	checks := make([]registeredCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		if c.appliesTo(probe) {
			checks = append(checks, c)
		}
	}
	hm.mu.RUnlock()

	results := make(map[string]string, len(checks))
	for _, c := range checks {
		if ctx.Err() != nil {
			results[c.name] = "timeout"
			continue
		}

		start := time.Now()
		err := c.checker.CheckHealth(ctx)
		status := "healthy"
		switch {
		case err == nil:
		case ctx.Err() != nil:
			status = "timeout"
		case c.optional:
			status = "degraded"
		default:
			status = "unhealthy"
		}
		metrics.RecordHealthCheck(c.name, status, time.Since(start))
		results[c.name] = status
	}
	return results
}

// determineOverallStatus determines overall health status
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == "unhealthy" {
			return "unhealthy"
		}
		if status == "degraded" || status == "timeout" {
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, probe Probe) {
	checkCtx, cancel := context.WithTimeout(r.Context(), probeTimeouts[probe])
	defer cancel()

	checks := hm.runHealthChecks(checkCtx, probe)
	status := hm.determineOverallStatus(checks)

	if status == "unhealthy" {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", string(probe)+" health check failed")
		envelope = enrichHealthEnvelope(envelope, string(probe), status, checks)
		respondWithError(w, r, envelope)
		return
	}

	now := time.Now().UTC()
	if probe == ProbeAggregate {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: now.Format(time.RFC3339),
			Checks:    checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: now, Checks: checks})
}

// HealthHandler runs every non-liveness check and reports each result.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeAggregate)
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeLive)
}

// ReadinessHandler reports whether the panel can serve X API traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeReady)
}

// StartupHandler reports whether initialization completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeStartup)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
	}
	if probe != "" {
		contextData["probe"] = probe
	}

	var unhealthy []string
	for name, result := range checks {
		if result != "healthy" {
			unhealthy = append(unhealthy, name)
		}
	}
	if len(unhealthy) > 0 {
		sort.Strings(unhealthy)
		contextData["unhealthy_checks"] = unhealthy
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

// Global health manager instance
var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func serveGlobal(w http.ResponseWriter, r *http.Request, probe Probe) {
	if globalHealthManager != nil {
		globalHealthManager.serveProbe(w, r, probe)
		return
	}

	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
	envelope = enrichHealthEnvelope(envelope, string(probe), "unknown", nil)
	respondWithError(w, r, envelope)
}

// LivenessHandler serves /health/live from the global manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) { serveGlobal(w, r, ProbeLive) }

// ReadinessHandler serves /health/ready from the global manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) { serveGlobal(w, r, ProbeReady) }

// StartupHandler serves /health/startup from the global manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) { serveGlobal(w, r, ProbeStartup) }

// HealthHandler serves /health from the global manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) { serveGlobal(w, r, ProbeAggregate) }
