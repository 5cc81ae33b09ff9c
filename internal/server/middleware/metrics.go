package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/metrics"
	"github.com/ragly/xpanel/internal/observability"
)

// responseWriter records the status and body size a handler wrote.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// EndpointPattern returns the chi route pattern for r so metric labels stay
// low-cardinality.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if routePattern := rctx.RoutePattern(); routePattern != "" {
			return routePattern
		}
	}

	path := r.URL.Path
	switch path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version":
		return "/version"
	case "/metrics":
		return "/metrics"
	case "/api/x/me", "/api/x/timeline", "/api/x/mentions", "/api/x/tweet", "/api/x/queue", "/api/x/diagnostics":
		return path
	case "/":
		return "/"
	}

	if strings.HasPrefix(path, "/api/x/queue/") {
		return "/api/x/queue/{id}"
	}
	return "/unknown"
}

// RequestMetrics records every request through the metrics package and logs
// it. Probe and scrape traffic is logged at debug.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil && observability.ServerLogger == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		req := metrics.HTTPRequest{
			Method:       r.Method,
			Endpoint:     EndpointPattern(r),
			Status:       wrapped.statusCode,
			Duration:     time.Since(start),
			RequestSize:  max(r.ContentLength, 0),
			ResponseSize: wrapped.bytesWritten,
		}
		metrics.RecordHTTPRequest(req)
		logRequest(r, req)
	})
}

func logRequest(r *http.Request, req metrics.HTTPRequest) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", r.URL.Path),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", req.Status),
		zap.Duration("duration", req.Duration),
		zap.Int64("request_size", req.RequestSize),
		zap.Int64("response_size", req.ResponseSize),
		zap.String("request_id", GetRequestID(r.Context())),
	}

	switch {
	case req.Status >= 500:
		logger.Warn("HTTP request failed", fields...)
	case strings.HasPrefix(req.Endpoint, "/health") || req.Endpoint == "/metrics":
		logger.Debug("HTTP request completed", fields...)
	default:
		logger.Info("HTTP request completed", fields...)
	}
}
