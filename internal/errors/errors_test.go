package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeValidation:      http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeConflict:        http.StatusConflict,
		CodeRateLimited:     http.StatusTooManyRequests,
		CodeExternalService: http.StatusBadGateway,
		CodeTimeout:         http.StatusGatewayTimeout,
		CodeConfigInvalid:   http.StatusInternalServerError,
		"SOMETHING_NEW":     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestFromDomainError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		code     string
		severity string
	}{
		{"local rate limit", &xapi.RateLimitError{Endpoint: "/2/tweets", Wait: 90 * time.Second}, CodeRateLimited, string(gferrors.SeverityMedium)},
		{"permission", &xapi.PermissionError{StatusCode: 403}, CodeForbidden, string(gferrors.SeverityMedium)},
		{"upstream", &xapi.UpstreamError{Method: "GET", Endpoint: "/2/users/me", StatusCode: 500}, CodeExternalService, string(gferrors.SeverityHigh)},
		{"config", &xapi.ConfigError{Missing: []string{"consumer_key"}}, CodeConfigInvalid, string(gferrors.SeverityCritical)},
		{"queue state", &core.QueueStateError{ID: "qt_a", Status: core.QueueStatusApproved}, CodeConflict, ""},
		{"not found", fmt.Errorf("lookup: %w", core.ErrQueuedTweetNotFound), CodeNotFound, ""},
		{"invalid tweet", core.ErrInvalidTweet, CodeValidation, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope := FromDomainError(tc.err)
			require.NotNil(t, envelope)
			assert.Equal(t, tc.code, envelope.Code)
			assert.Equal(t, tc.severity, string(envelope.Severity))
		})
	}

	assert.Nil(t, FromDomainError(nil))
	assert.Nil(t, FromDomainError(fmt.Errorf("plain")))
}

func TestFromDomainErrorKeepsPostedTweetID(t *testing.T) {
	err := &core.UnrecordedPostError{QueueID: "qt_a", PostedTweetID: "1850000000000000001", Err: fmt.Errorf("disk I/O error")}
	envelope := FromDomainError(err)
	require.NotNil(t, envelope)
	assert.Equal(t, CodeDatabase, envelope.Code)
	assert.Equal(t, "1850000000000000001", envelope.Context["posted_tweet_id"])
	assert.Equal(t, "qt_a", envelope.Context["queue_id"])

	raced := &core.UnrecordedPostError{QueueID: "qt_a", PostedTweetID: "1", Err: &core.QueueStateError{ID: "qt_a", Status: core.QueueStatusRejected}}
	assert.Equal(t, CodeConflict, FromDomainError(raced).Code)
}

func TestEnsureEnvelopeFallsBackToInternal(t *testing.T) {
	envelope := EnsureEnvelope(fmt.Errorf("boom"))
	assert.Equal(t, CodeInternal, envelope.Code)
	assert.Equal(t, "boom", envelope.Context["wrapped_error"])

	existing := NewNotFoundError("gone")
	assert.Same(t, existing, EnsureEnvelope(existing))
}

func TestWrapStampsIDs(t *testing.T) {
	envelope := WrapDatabaseError(context.Background(), fmt.Errorf("disk full"), "failed to list queue")
	assert.Equal(t, CodeDatabase, envelope.Code)
	assert.NotEmpty(t, envelope.CorrelationID)
	assert.Equal(t, "disk full", envelope.Context["wrapped_error"])
}

func TestRespondWithErrorSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/x/timeline", nil)

	RespondWithError(rec, req, &xapi.RateLimitError{Endpoint: "/2/users/42/tweets", Wait: 61500 * time.Millisecond, Remote: true})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "62", rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeRateLimited, body.Error.Code)
	assert.Equal(t, "remote", body.Error.Details["source"])
	assert.Equal(t, "/2/users/42/tweets", body.Error.Details["endpoint"])
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestRespondWithErrorNoRetryAfterForOtherCodes(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/", nil), core.ErrQueuedTweetNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
