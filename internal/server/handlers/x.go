package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/core/engine"
	apperrors "github.com/ragly/xpanel/internal/errors"
	"github.com/ragly/xpanel/internal/metrics"
	"github.com/ragly/xpanel/internal/xapi"
)

const maxRequestBody = 64 << 10

// XHandler serves the /api/x routes on top of one shared client.
type XHandler struct {
	Client *xapi.Client
	Queue  *engine.ApprovalQueue
	Clock  func() time.Time
}

// DiagnosticsResponse reports tracked rate-limit budgets.
type DiagnosticsResponse struct {
	RateLimits   map[string]core.RateLimitSnapshot `json:"rate_limits"`
	CacheEntries int                               `json:"cache_entries"`
	Timestamp    string                            `json:"timestamp"`
}

type tweetRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type queueDecisionRequest struct {
	Action string `json:"action"`
}

// Routes mounts the handler under the caller's router.
func (h *XHandler) Routes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Get("/timeline", h.Timeline)
	r.Get("/mentions", h.Mentions)
	r.Post("/tweet", h.PostTweet)
	r.Get("/diagnostics", h.Diagnostics)

	r.Get("/queue", h.ListQueue)
	r.Post("/queue", h.EnqueueTweet)
	r.Patch("/queue/{id}", h.DecideQueuedTweet)
	r.Delete("/queue/{id}", h.DeleteQueuedTweet)
}

// Me returns the authenticated account.
func (h *XHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Client.Me(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": user})
}

// Timeline returns the account's own recent tweets.
func (h *XHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	opts, err := pageOptions(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, "invalid query parameters"))
		return
	}

	page, err := h.Client.Timeline(r.Context(), opts)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Mentions returns recent tweets mentioning the account.
func (h *XHandler) Mentions(w http.ResponseWriter, r *http.Request) {
	opts, err := pageOptions(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapValidationError(r.Context(), err, "invalid query parameters"))
		return
	}

	page, err := h.Client.MentionsTimeline(r.Context(), opts)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// PostTweet publishes immediately, bypassing the approval queue.
func (h *XHandler) PostTweet(w http.ResponseWriter, r *http.Request) {
	var req tweetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	posted, err := h.Client.PostTweet(r.Context(), req.Text, req.ReplyTo)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": posted})
}

// Diagnostics reports the tracker state and cache size.
func (h *XHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DiagnosticsResponse{
		RateLimits:   h.Client.RateLimitDiagnostics(),
		CacheEntries: h.Client.CacheSize(),
		Timestamp:    h.now().UTC().Format(time.RFC3339),
	})
}

// ListQueue returns queued tweets, optionally filtered with ?status=.
func (h *XHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	status := core.QueueStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", core.QueueStatusPending, core.QueueStatusApproved, core.QueueStatusRejected:
	default:
		respondWithError(w, r, apperrors.NewValidationError("status must be pending, approved or rejected"))
		return
	}

	tweets, err := h.Queue.List(r.Context(), status)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list queue"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": tweets})
}

// EnqueueTweet stores a tweet for later approval.
func (h *XHandler) EnqueueTweet(w http.ResponseWriter, r *http.Request) {
	var req tweetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tweet, err := h.Queue.Enqueue(r.Context(), req.Text)
	metrics.RecordQueueOperation("enqueue", err == nil)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.reportPending(r)
	writeJSON(w, http.StatusCreated, map[string]any{"data": tweet})
}

// DecideQueuedTweet approves (posting it) or rejects a pending tweet.
func (h *XHandler) DecideQueuedTweet(w http.ResponseWriter, r *http.Request) {
	var req queueDecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	action, err := core.ParseQueueAction(req.Action)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	decision, err := h.Queue.Decide(r.Context(), chi.URLParam(r, "id"), action)
	metrics.RecordQueueOperation(string(action), err == nil)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.reportPending(r)
	writeJSON(w, http.StatusOK, decision)
}

// DeleteQueuedTweet removes a tweet from the queue.
func (h *XHandler) DeleteQueuedTweet(w http.ResponseWriter, r *http.Request) {
	err := h.Queue.Delete(r.Context(), chi.URLParam(r, "id"))
	metrics.RecordQueueOperation("delete", err == nil)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.reportPending(r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *XHandler) reportPending(r *http.Request) {
	if pending, err := h.Queue.Pending(r.Context()); err == nil {
		metrics.SetQueuePending(pending)
	}
}

func (h *XHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func pageOptions(r *http.Request) (xapi.PageOptions, error) {
	query := r.URL.Query()
	opts := xapi.PageOptions{
		PaginationToken: strings.TrimSpace(query.Get("pagination_token")),
	}

	if raw := strings.TrimSpace(query.Get("max_results")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}
		opts.MaxResults = n
	}

	if raw := strings.TrimSpace(query.Get("refresh")); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, err
		}
		opts.Refresh = refresh
	}
	return opts, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be valid JSON"))
		return false
	}
	return true
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
