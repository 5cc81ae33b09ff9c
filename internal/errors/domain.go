package errors

import (
	stderrors "errors"
	"math"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

const retryAfterKey = "retry_after_seconds"

// FromDomainError maps X client, queue and validation failures onto API
// envelopes. It returns nil for errors it does not recognize. Caller input
// problems carry no severity and are logged at info.
func FromDomainError(err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var unrecorded *core.UnrecordedPostError
	if stderrors.As(err, &unrecorded) {
		return unrecordedPostEnvelope(unrecorded)
	}

	var (
		rateErr       *xapi.RateLimitError
		permissionErr *xapi.PermissionError
		upstreamErr   *xapi.UpstreamError
		transportErr  *xapi.TransportError
		configErr     *xapi.ConfigError
		stateErr      *core.QueueStateError
	)

	var envelope *errors.ErrorEnvelope
	severity := errors.SeverityMedium
	clientFault := false
	var details map[string]interface{}

	switch {
	case stderrors.As(err, &rateErr):
		envelope = New(CodeRateLimited, rateErr.Error())
		source := "local"
		if rateErr.Remote {
			source = "remote"
		}
		details = map[string]interface{}{
			"endpoint":     rateErr.Endpoint,
			"wait_minutes": rateErr.WaitMinutes(),
			"source":       source,
			retryAfterKey:  int64(math.Ceil(rateErr.Wait.Seconds())),
		}
		if !rateErr.ResetAt.IsZero() {
			details["reset_at"] = rateErr.ResetAt.UTC().Format(time.RFC3339)
		}
	case stderrors.As(err, &permissionErr):
		envelope = New(CodeForbidden, permissionErr.Error())
		details = map[string]interface{}{"upstream_status": permissionErr.StatusCode}
	case stderrors.As(err, &upstreamErr):
		envelope = New(CodeExternalService, upstreamErr.Error())
		severity = errors.SeverityHigh
		details = map[string]interface{}{
			"upstream_status": upstreamErr.StatusCode,
			"endpoint":        upstreamErr.Endpoint,
		}
		if upstreamErr.Body != "" {
			details["upstream_body"] = upstreamErr.Body
		}
	case stderrors.As(err, &transportErr):
		if transportErr.Timeout() {
			envelope = New(CodeTimeout, transportErr.Error())
		} else {
			envelope = New(CodeExternalService, transportErr.Error())
		}
		severity = errors.SeverityHigh
		details = map[string]interface{}{"endpoint": transportErr.Endpoint}
	case stderrors.As(err, &configErr):
		envelope = New(CodeConfigInvalid, configErr.Error())
		severity = errors.SeverityCritical
		details = map[string]interface{}{"missing": configErr.Missing}
	case stderrors.As(err, &stateErr):
		envelope = New(CodeConflict, stateErr.Error())
		clientFault = true
		details = map[string]interface{}{"status": string(stateErr.Status)}
	case stderrors.Is(err, core.ErrQueuedTweetNotFound):
		envelope = New(CodeNotFound, "Queued tweet not found")
		clientFault = true
	case stderrors.Is(err, core.ErrInvalidTweet):
		envelope = New(CodeValidation, err.Error())
		clientFault = true
	default:
		return nil
	}

	if len(details) > 0 {
		envelope = withContext(envelope, details)
	}
	if !clientFault {
		if updated, sevErr := envelope.WithSeverity(severity); sevErr == nil {
			envelope = updated
		}
	}
	return envelope
}

// unrecordedPostEnvelope keeps the mapping of the underlying failure and adds
// the ids needed to reconcile the queue entry by hand.
func unrecordedPostEnvelope(err *core.UnrecordedPostError) *errors.ErrorEnvelope {
	envelope := FromDomainError(err.Err)
	if envelope == nil {
		envelope = New(CodeDatabase, "Tweet was posted but the approval could not be recorded")
		if updated, sevErr := envelope.WithSeverity(errors.SeverityHigh); sevErr == nil {
			envelope = updated
		}
	}
	return withContext(envelope, map[string]interface{}{
		"queue_id":        err.QueueID,
		"posted_tweet_id": err.PostedTweetID,
	})
}
