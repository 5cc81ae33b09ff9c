package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ragly/xpanel/internal/observability"
)

const (
	HTTPRequestsTotal    = "http_requests_total"
	HTTPRequestDuration  = "http_request_duration_ms"
	HTTPRequestSize      = "http_request_size_bytes"
	HTTPResponseSize     = "http_response_size_bytes"
	HTTPErrorsTotal      = "http_errors_total"
	HTTPRateLimitedTotal = "http_rate_limited_total"
)

// HTTPRequest describes one served request. Endpoint must be a route
// pattern, never a raw path.
type HTTPRequest struct {
	Method       string
	Endpoint     string
	Status       int
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
}

// ErrorType classifies a status for the http_errors_total label. It returns
// "" for successful responses.
func ErrorType(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RecordHTTPRequest emits the request counter, latency histogram and size
// gauges, plus error counters for non-2xx responses. A 429 here means the
// panel refused the call to protect an X endpoint budget.
func RecordHTTPRequest(req HTTPRequest) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := strconv.Itoa(req.Status)
	route := map[string]string{"method": req.Method, "endpoint": req.Endpoint}
	labels := map[string]string{"method": req.Method, "endpoint": req.Endpoint, "status": status}

	count(HTTPRequestsTotal, labels)
	timing(HTTPRequestDuration, req.Duration, labels)
	gauge(HTTPRequestSize, float64(req.RequestSize), route)
	gauge(HTTPResponseSize, float64(req.ResponseSize), route)

	errorType := ErrorType(req.Status)
	if errorType == "" {
		return
	}
	count(HTTPErrorsTotal, map[string]string{
		"method":     req.Method,
		"endpoint":   req.Endpoint,
		"status":     status,
		"error_type": errorType,
	})
	if req.Status == http.StatusTooManyRequests {
		count(HTTPRateLimitedTotal, route)
	}
}
