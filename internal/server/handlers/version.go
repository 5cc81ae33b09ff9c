package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/ragly/xpanel/internal/xapi"
)

// AppVersion is injected from main via SetVersionInfo
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"

	versionMu   sync.RWMutex
	appIdentity *appidentity.Identity
	upstream    *UpstreamInfo
)

// SetVersionInfo sets the version information for the handler
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppIdentity sets the app identity for the handler
func SetAppIdentity(identity *appidentity.Identity) {
	versionMu.Lock()
	appIdentity = identity
	versionMu.Unlock()
}

// SetUpstream records the X API client settings reported by /version.
func SetUpstream(client *xapi.Client) {
	versionMu.Lock()
	defer versionMu.Unlock()
	if client == nil {
		upstream = nil
		return
	}
	var cacheTTL time.Duration
	if client.Cache != nil {
		cacheTTL = client.Cache.TTL
	}
	upstream = &UpstreamInfo{
		BaseURL:        client.BaseURL,
		CacheTTL:       durationString(cacheTTL),
		MinRequestGap:  durationString(client.Throttle.Gap()),
		RequestTimeout: durationString(client.RequestTimeout),
	}
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo       `json:"app"`
	Upstream     *UpstreamInfo `json:"upstream,omitempty"`
	Dependencies DepInfo       `json:"dependencies"`
	Runtime      RuntimeInfo   `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// UpstreamInfo describes the X API client the server talks through.
type UpstreamInfo struct {
	BaseURL        string `json:"base_url"`
	CacheTTL       string `json:"cache_ttl"`
	MinRequestGap  string `json:"min_request_gap"`
	RequestTimeout string `json:"request_timeout"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// CurrentVersion assembles the response served by /version. The CLI's
// version command reuses it for JSON output.
func CurrentVersion() VersionResponse {
	versionMu.RLock()
	identity := appIdentity
	up := upstream
	versionMu.RUnlock()

	name := "unknown"
	if identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	} else if len(os.Args) > 0 && os.Args[0] != "" {
		name = filepath.Base(os.Args[0])
	}

	deps := crucible.GetVersion()
	return VersionResponse{
		App: AppInfo{
			Name:      name,
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Upstream: up,
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentVersion())
}

func durationString(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	return d.String()
}
