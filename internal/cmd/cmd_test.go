package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragly/xpanel/internal/appid"
	"github.com/ragly/xpanel/internal/config"
	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/core/store"
	"github.com/ragly/xpanel/internal/output"
	"github.com/ragly/xpanel/internal/xapi"
)

func TestExitCodeFor(t *testing.T) {
	cfgErr := &xapi.ConfigError{Missing: []string{"consumer_key"}}
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(fmt.Errorf("start: %w", cfgErr)))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(&xapi.TransportError{Endpoint: "/2/users/me", Err: errors.New("dial")}))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(&xapi.UpstreamError{StatusCode: 503, Endpoint: "/2/tweets"}))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(&xapi.RateLimitError{Endpoint: "/2/tweets"}))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(errors.New("boom")))
}

func TestTracksBudget(t *testing.T) {
	assert.True(t, tracksBudget(xapi.Outcome{Endpoint: "/2/users/me", Result: xapi.ResultOK}))
	assert.True(t, tracksBudget(xapi.Outcome{Endpoint: "/2/tweets", Result: xapi.ResultRateLimitedRemote}))
	assert.False(t, tracksBudget(xapi.Outcome{Endpoint: "/2/users/me", Result: xapi.ResultCacheHit}))
	assert.False(t, tracksBudget(xapi.Outcome{Endpoint: "/2/tweets", Result: xapi.ResultRateLimitedLocal}))
	assert.False(t, tracksBudget(xapi.Outcome{Result: xapi.ResultOK}))
}

func TestIsConfigError(t *testing.T) {
	_, err := xapi.NewClient(xapi.Credentials{}, xapi.Options{})
	require.Error(t, err)
	assert.True(t, isConfigError(err))
	assert.False(t, isConfigError(errors.New("other")))
}

func newEmitCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "probe"}
	addOutputFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestEmitWritesToOutDir(t *testing.T) {
	dir := t.TempDir()
	c := newEmitCommand(t, "--output-format", "json", "--out-dir", dir)

	err := emit(c, "Who Am I", func(f output.Formatter) (string, error) {
		return f.FormatUser(&xapi.User{ID: "42", Username: "gopher"})
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "who-am-i.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"username": "gopher"`)
}

func TestEmitWritesToCommandOutput(t *testing.T) {
	var stdout bytes.Buffer
	c := newEmitCommand(t, "--out", "-")
	c.SetOut(&stdout)

	err := emitFormat(c, "rate-limit.list", func(format output.Format) (string, error) {
		assert.Equal(t, output.FormatTable, format)
		return "line\n\n", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "line\n", stdout.String())
}

func TestEmitRejectsConflictingTargets(t *testing.T) {
	c := newEmitCommand(t, "--out", "a.txt", "--out-dir", t.TempDir())
	err := emit(c, "x", func(f output.Formatter) (string, error) { return "", nil })
	require.Error(t, err)

	c = newEmitCommand(t, "--output-format", "csv")
	err = emit(c, "x", func(f output.Formatter) (string, error) { return "", nil })
	require.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "rate-limit.list", sanitizeFilename(" Rate Limit.list "))
	assert.Equal(t, "output", sanitizeFilename("///"))
}

func TestRenderRateLimitEntries(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []store.RateLimitEntry{
		{Endpoint: "/2/tweets", Info: core.RateLimitInfo{Remaining: 0, Limit: 17, ResetAt: now.Add(90 * time.Second)}},
		{Endpoint: "/2/users/me", Info: core.RateLimitInfo{Remaining: 24, Limit: 25, ResetAt: now.Add(-time.Minute)}},
	}

	rendered := renderRateLimitEntries(entries, now)
	assert.Contains(t, rendered, "/2/tweets: remaining=0/17")
	assert.Contains(t, rendered, "resets in 1m30s")
	assert.Contains(t, rendered, "(expired)")

	assert.Contains(t, renderRateLimitEntries(nil, now), "(no stored rate limit state)")
}

func TestRenderRateLimitReset(t *testing.T) {
	text, err := renderRateLimitReset(output.FormatTable, rateLimitResetResult{Matched: 3, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "Would delete 3 rate limit entr(ies)", text)

	text, err = renderRateLimitReset(output.FormatTable, rateLimitResetResult{Matched: 3, Deleted: 2})
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2/3 rate limit entr(ies)", text)

	text, err = renderRateLimitReset(output.FormatJSON, rateLimitResetResult{Matched: 1, Deleted: 1, Expired: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"matched":1,"deleted":1,"dry_run":false,"expired_only":true}`, text)
}

func TestApplyIdentityUpdatesRootCommand(t *testing.T) {
	savedUse, savedShort, savedLong, savedIdentity := rootCmd.Use, rootCmd.Short, rootCmd.Long, appIdentity
	t.Cleanup(func() {
		rootCmd.Use, rootCmd.Short, rootCmd.Long, appIdentity = savedUse, savedShort, savedLong, savedIdentity
	})

	identity := appid.Default
	identity.BinaryName = "xpanel-staging"
	applyIdentity(&identity)

	assert.Equal(t, "xpanel-staging", rootCmd.Use)
	assert.Equal(t, appid.Default.Description, rootCmd.Short)
	assert.Contains(t, rootCmd.Long, "xpanel-staging - ")
	assert.Same(t, &identity, GetAppIdentity())
}

func TestWriteFatal(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, "Failed to load config", errors.New("bad yaml"), "Exit Code: 3")
	assert.Equal(t, "FATAL: Failed to load config: bad yaml\nExit Code: 3\n", buf.String())

	buf.Reset()
	envelope := gferrors.NewErrorEnvelope("CONFIG_INVALID", "missing credentials")
	writeFatal(&buf, "Cannot start", envelope, "Exit Code: 3")
	assert.Contains(t, buf.String(), "FATAL: Cannot start [CONFIG_INVALID]: missing credentials")
}

func TestExitWithCodeStderrUsesFoundryCode(t *testing.T) {
	var code int
	osExit = func(c int) { code = c }
	t.Cleanup(func() { osExit = os.Exit })

	ExitWithCodeStderr(foundry.ExitConfigInvalid, "bad config", nil)
	assert.Equal(t, int(foundry.ExitConfigInvalid), code)
}

func TestNewXClientOwnsTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.ndjson")
	cfg := &config.Config{
		X: config.XConfig{
			ConsumerKey:       "ck",
			ConsumerSecret:    "cs",
			AccessToken:       "at",
			AccessTokenSecret: "as",
		},
		Debug: config.DebugConfig{TraceFile: path},
	}

	client, err := newXClient(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, client.Tracer)
	require.FileExists(t, path)

	require.NoError(t, client.Close())
	require.Nil(t, client.Tracer)
}

func TestNewXClientMissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.ndjson")
	cfg := &config.Config{Debug: config.DebugConfig{TraceFile: path}}

	_, err := newXClient(context.Background(), cfg, nil, nil)
	require.True(t, isConfigError(err))
}
