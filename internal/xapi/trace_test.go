package xapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTraceRecordsOutcomesWithoutSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")
	tracer, err := OpenTracer(path)
	require.NoError(t, err)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client.Tracer = tracer
	_, err = client.Fetch(context.Background(), http.MethodGet, "/2/users/1234567890/tweets", nil)
	require.Error(t, err)
	require.NoError(t, client.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, secret := range []string{testCredentials.ConsumerSecret, testCredentials.AccessTokenSecret, "oauth_signature"} {
		require.NotContains(t, string(data), secret)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	require.True(t, scanner.Scan())
	var entry TraceEntry
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	require.Equal(t, "/2/users/:id/tweets", entry.Endpoint)
	require.Equal(t, http.StatusServiceUnavailable, entry.StatusCode)
	require.Equal(t, ResultUpstreamError, entry.Result)
	require.False(t, scanner.Scan())
}

func TestClientWithoutTracerIsNoop(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	})
	require.Nil(t, client.Tracer)
	_, err := client.Fetch(context.Background(), http.MethodGet, "/2/users/me", nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

type closeRecorder struct {
	bytes.Buffer
	closes int
}

func (c *closeRecorder) Close() error {
	c.closes++
	return nil
}

func TestTracersAreScopedToTheirClient(t *testing.T) {
	first, second := &closeRecorder{}, &closeRecorder{}
	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}
	a, _ := newTestClient(t, handler)
	b, _ := newTestClient(t, handler)
	a.Tracer = NewTracer(first)
	b.Tracer = NewTracer(second)

	_, err := a.Fetch(context.Background(), http.MethodGet, "/2/users/me", nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.String())
	require.Empty(t, second.String())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Equal(t, 1, first.closes)
	require.Zero(t, second.closes)
}

func TestTracerDropsWritesAfterClose(t *testing.T) {
	out := &closeRecorder{}
	tracer := NewTracer(out)

	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	tracer.Write(traceEntryFor(Outcome{Method: "GET", Endpoint: "/2/users/me", Result: ResultOK, Remaining: 74, Duration: 1500 * time.Millisecond}, at))
	tracer.Write(traceEntryFor(Outcome{Method: "POST", Endpoint: "/2/tweets", Err: errors.New("boom")}, at))
	require.NoError(t, tracer.Close())
	tracer.Write(TraceEntry{Endpoint: "/2/tweets"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var entry TraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "/2/users/me", entry.Endpoint)
	require.Equal(t, int64(1500), entry.DurationMs)
	require.Equal(t, 74, entry.Remaining)
	require.True(t, at.Equal(entry.Timestamp))

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	require.Equal(t, "boom", entry.Error)
	require.Equal(t, 1, out.closes)
}
