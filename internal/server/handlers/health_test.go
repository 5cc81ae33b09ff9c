package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragly/xpanel/internal/xapi"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func failing(msg string) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error { return errors.New(msg) })
}

func serve(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestHealthHandlerHealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", StoreChecker(pingFunc(func(context.Context) error { return nil })))
	manager.RegisterChecker("x_credentials", CredentialsChecker(xapi.Credentials{
		ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "as",
	}))

	rec := serve(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, map[string]string{"store": "healthy", "x_credentials": "healthy"}, resp.Checks)
}

func TestHealthHandlerUnhealthyStore(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", StoreChecker(nil))

	rec := serve(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, "unhealthy", checks["store"])
}

func TestReadinessFailsWithoutCredentials(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("x_credentials", CredentialsChecker(xapi.Credentials{ConsumerKey: "ck"}))

	rec := serve(t, manager.ReadinessHandler, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessIgnoresDependencies(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", failing("down"))

	rec := serve(t, manager.LivenessHandler, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProbeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestOptionalCheckDegrades(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("telemetry", failing("not initialized"), Optional())

	rec := serve(t, manager.ReadinessHandler, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProbeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "degraded", resp.Checks["telemetry"])
}

func TestForProbesScopesChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("app_identity", failing("missing"), ForProbes(ProbeStartup))

	assert.Equal(t, http.StatusOK, serve(t, manager.ReadinessHandler, "/health/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, manager.StartupHandler, "/health/startup").Code)
}

func TestRegisterCheckerReplacesByName(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", failing("down"))
	manager.RegisterChecker("store", HealthCheckFunc(func(context.Context) error { return nil }))

	checks := manager.runHealthChecks(context.Background(), ProbeReady)
	assert.Equal(t, map[string]string{"store": "healthy"}, checks)
}

func TestRunHealthChecksReportsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", StoreChecker(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checks := manager.runHealthChecks(ctx, ProbeReady)
	assert.Equal(t, "timeout", checks["store"])
	assert.Equal(t, "degraded", manager.determineOverallStatus(checks))
}

func TestGlobalHandlerWithoutManager(t *testing.T) {
	saved := globalHealthManager
	globalHealthManager = nil
	t.Cleanup(func() { globalHealthManager = saved })

	rec := serve(t, ReadinessHandler, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
