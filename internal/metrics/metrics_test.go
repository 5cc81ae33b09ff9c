package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragly/xpanel/internal/observability"
	"github.com/ragly/xpanel/internal/xapi"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func TestRecordXAPIOutcome(t *testing.T) {
	collector := setupTelemetry(t)

	RecordXAPIOutcome(xapi.Outcome{Method: "GET", Endpoint: "/2/users/:id/tweets", Result: xapi.ResultOK, Status: 200, Duration: 40 * time.Millisecond, Remaining: 12})
	RecordXAPIOutcome(xapi.Outcome{Method: "GET", Endpoint: "/2/users/me", Result: xapi.ResultCacheHit, Remaining: -1})

	assert.Equal(t, 2, collector.CountMetricsByName(XAPIRequestsTotal))
	assert.Equal(t, 2, collector.CountMetricsByName(XAPIRequestDuration))
	assert.Equal(t, 1, collector.CountMetricsByName(XAPIRateRemaining))
}

func TestXAPIObserverLogsAndRecords(t *testing.T) {
	collector := setupTelemetry(t)

	logger, err := logging.NewCLI("metrics-test")
	require.NoError(t, err)

	observe := XAPIObserver(logger)
	observe(xapi.Outcome{Method: "POST", Endpoint: "/2/tweets", Result: xapi.ResultPermissionDenied, Status: 403, Remaining: -1, Err: errors.New("denied")})
	observe(xapi.Outcome{Method: "GET", Endpoint: "/2/users/me", Result: xapi.ResultRateLimitedLocal, Remaining: 0})

	XAPIObserver(nil)(xapi.Outcome{Method: "GET", Endpoint: "/2/users/me", Result: xapi.ResultOK, Remaining: -1})

	assert.Equal(t, 3, collector.CountMetricsByName(XAPIRequestsTotal))
}

func TestRecordersWithTelemetryDisabled(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	RecordXAPIOutcome(xapi.Outcome{Endpoint: "/2/tweets"})
	RecordError("RATE_LIMITED", 429)
	RecordPanic()
	RecordErrorByEndpoint("/api/x/tweet", "FORBIDDEN")
	RecordQueueOperation("approve", true)
	SetQueuePending(3)
	RecordHealthCheck("store", "healthy", time.Millisecond)
	SetServerStartTime(time.Now().Unix())
}

func TestQueueAndErrorMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordQueueOperation("approve", false)
	SetQueuePending(2)
	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/api/x/timeline", "RATE_LIMITED")
	RecordHealthCheck("telemetry", "degraded", 2*time.Millisecond)
	RecordPanic()

	assert.Equal(t, 1, collector.CountMetricsByName(HealthCheckTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(HealthCheckDuration))
	assert.Equal(t, 1, collector.CountMetricsByName(PanicsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(QueueOperationsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(QueuePending))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsByEndpointName))
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "", ErrorType(200))
	assert.Equal(t, "", ErrorType(304))
	assert.Equal(t, "client_error", ErrorType(404))
	assert.Equal(t, "rate_limited", ErrorType(429))
	assert.Equal(t, "server_error", ErrorType(502))
}

func TestRecordHTTPRequest(t *testing.T) {
	collector := setupTelemetry(t)

	RecordHTTPRequest(HTTPRequest{Method: "GET", Endpoint: "/api/x/me", Status: 200, Duration: time.Millisecond})
	RecordHTTPRequest(HTTPRequest{Method: "GET", Endpoint: "/api/x/timeline", Status: 429})

	assert.Equal(t, 2, collector.CountMetricsByName(HTTPRequestsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(HTTPErrorsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(HTTPRateLimitedTotal))
}
