package metrics

import (
	"strconv"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/xapi"
)

// X API client metrics
const (
	XAPIRequestsTotal   = "xapi_requests_total"
	XAPIRequestDuration = "xapi_request_duration_ms"
	XAPIRateRemaining   = "xapi_rate_limit_remaining"
)

// RecordXAPIOutcome emits request metrics for one finished Fetch call.
func RecordXAPIOutcome(o xapi.Outcome) {
	labels := map[string]string{
		"endpoint": o.Endpoint,
		"method":   o.Method,
		"outcome":  o.Result,
	}
	count(XAPIRequestsTotal, labels)
	timing(XAPIRequestDuration, o.Duration, labels)

	if o.Remaining >= 0 {
		gauge(XAPIRateRemaining, float64(o.Remaining), map[string]string{"endpoint": o.Endpoint})
	}
}

// XAPIObserver returns an outcome hook that logs each call and records
// metrics. Only the endpoint key and outcome are logged.
func XAPIObserver(logger *logging.Logger) func(xapi.Outcome) {
	return func(o xapi.Outcome) {
		RecordXAPIOutcome(o)
		if logger == nil {
			return
		}

		fields := []zap.Field{
			zap.String("method", o.Method),
			zap.String("endpoint", o.Endpoint),
			zap.String("outcome", o.Result),
			zap.Duration("duration", o.Duration),
		}
		if o.Status != 0 {
			fields = append(fields, zap.String("status", strconv.Itoa(o.Status)))
		}
		if o.Attempts > 1 {
			fields = append(fields, zap.Int("attempts", o.Attempts))
		}
		if o.Remaining >= 0 {
			fields = append(fields, zap.Int("rate_remaining", o.Remaining))
		}

		switch o.Result {
		case xapi.ResultOK, xapi.ResultCacheHit:
			logger.Debug("X API call", fields...)
		case xapi.ResultRateLimitedLocal, xapi.ResultRateLimitedRemote, xapi.ResultCanceled:
			logger.Warn("X API call", fields...)
		default:
			if o.Err != nil {
				fields = append(fields, zap.Error(o.Err))
			}
			logger.Error("X API call", fields...)
		}
	}
}
