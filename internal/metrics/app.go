package metrics

import (
	"strconv"
	"time"

	"github.com/ragly/xpanel/internal/observability"
)

// Application, error and lifecycle series.
const (
	QueueOperationsTotal = "app_queue_operations_total"
	QueuePending         = "app_queue_pending"
	HealthCheckTotal     = "app_health_check_total"
	HealthCheckDuration  = "app_health_check_duration_ms"
	ServerStartTime      = "app_server_start_time_seconds"

	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// The helpers below drop emission errors and are no-ops until telemetry is
// initialized, so recorders can be called from any code path.

func count(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}

func timing(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}

// RecordQueueOperation counts an approve or reject decision.
func RecordQueueOperation(action string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	count(QueueOperationsTotal, map[string]string{"action": action, "status": status})
}

// SetQueuePending reports how many tweets await a decision.
func SetQueuePending(n int) {
	gauge(QueuePending, float64(n), nil)
}

// RecordHealthCheck records one check run. status is the value reported
// for the check: healthy, degraded, timeout or unhealthy.
func RecordHealthCheck(check, status string, d time.Duration) {
	count(HealthCheckTotal, map[string]string{"check": check, "status": status})
	timing(HealthCheckDuration, d, map[string]string{"check": check})
}

func SetServerStartTime(unix int64) {
	gauge(ServerStartTime, float64(unix), nil)
}

// RecordError counts an error envelope written to a client.
func RecordError(code string, httpStatus int) {
	count(ErrorsTotalName, map[string]string{"error_code": code, "http_status": strconv.Itoa(httpStatus)})
}

func RecordPanic() {
	count(PanicsTotalName, nil)
}

// RecordErrorByEndpoint counts an error against a route pattern. Raw paths
// must not be passed; they would explode label cardinality.
func RecordErrorByEndpoint(endpoint, code string) {
	count(ErrorsByEndpointName, map[string]string{"endpoint": endpoint, "error_code": code})
}
