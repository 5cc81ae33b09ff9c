// Package config resolves xpanel settings. Later layers win: built-in
// defaults, then the viper-read config file (and bound flags), then
// {PREFIX}* environment variables, then runtime overrides.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ragly/xpanel/internal/appid"
)

var (
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// EnvVarSpec maps one environment variable onto a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// legacyCredentialEnv maps the un-prefixed variable names used by earlier
// deployments onto credential keys. Prefixed variables win.
var legacyCredentialEnv = map[string]string{
	"X_API_KEY":                 "consumer_key",
	"X_API_SECRET":              "consumer_secret",
	"X_API_ACCESS_TOKEN":        "access_token",
	"X_API_ACCESS_TOKEN_SECRET": "access_token_secret",
}

// Load resolves configuration from the global viper instance. It may be
// called again, e.g. on SIGHUP.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.GetViper(), runtimeOverrides...)
}

// LoadFrom resolves configuration from v, layering defaults underneath and
// environment plus runtime overrides on top.
func LoadFrom(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := ensureIdentity(ctx); err != nil {
		return nil, err
	}

	merged := viper.New()
	SetDefaults(merged)

	if v != nil {
		if err := merged.MergeConfigMap(v.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge config file settings: %w", err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyLegacyCredentialEnv(envOverrides)

	layers := append([]map[string]any{envOverrides}, runtimeOverrides...)
	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		if err := merged.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// setting binds one config key to its default and, optionally, to an
// environment variable named prefix+env.Name.
type setting struct {
	key string
	def any
	env EnvVarSpec
}

func envStr(name string) EnvVarSpec  { return EnvVarSpec{Name: name, Type: EnvString} }
func envInt(name string) EnvVarSpec  { return EnvVarSpec{Name: name, Type: EnvInt} }
func envBool(name string) EnvVarSpec { return EnvVarSpec{Name: name, Type: EnvBool} }

// Durations are read from the environment as strings and converted by the
// mapstructure decode hook.
var settings = []setting{
	{"server.host", "localhost", envStr("HOST")},
	{"server.port", 8080, envInt("PORT")},
	{"server.read_timeout", "30s", envStr("READ_TIMEOUT")},
	{"server.write_timeout", "30s", envStr("WRITE_TIMEOUT")},
	{"server.idle_timeout", "120s", envStr("IDLE_TIMEOUT")},
	{"server.shutdown_timeout", "10s", envStr("SHUTDOWN_TIMEOUT")},
	{"server.admin_token", "", envStr("ADMIN_TOKEN")},

	{"logging.level", "info", envStr("LOG_LEVEL")},
	{"logging.profile", "structured", envStr("LOG_PROFILE")},

	{"store.driver", "libsql", envStr("DB_DRIVER")},
	{"store.path", DefaultStorePath, envStr("DB_PATH")},
	{"store.url", "", envStr("DB_URL")},
	{"store.auth_token", "", envStr("DB_AUTH_TOKEN")},

	{"x.base_url", "https://api.twitter.com", envStr("X_BASE_URL")},
	{"x.consumer_key", "", envStr("X_CONSUMER_KEY")},
	{"x.consumer_secret", "", envStr("X_CONSUMER_SECRET")},
	{"x.access_token", "", envStr("X_ACCESS_TOKEN")},
	{"x.access_token_secret", "", envStr("X_ACCESS_TOKEN_SECRET")},
	{"x.cache_ttl", "15m", envStr("X_CACHE_TTL")},
	{"x.user_id_ttl", "24h", envStr("X_USER_ID_TTL")},
	{"x.min_request_gap", "1.1s", envStr("X_MIN_REQUEST_GAP")},
	{"x.request_timeout", "15s", envStr("X_REQUEST_TIMEOUT")},
	{"x.retry.max_attempts", 1, envInt("X_RETRY_MAX_ATTEMPTS")},
	{"x.retry.max_wait", "30s", envStr("X_RETRY_MAX_WAIT")},

	{"queue.approver", "operator", envStr("QUEUE_APPROVER")},

	{"metrics.enabled", true, envBool("METRICS_ENABLED")},
	{"metrics.port", 9090, envInt("METRICS_PORT")},

	{"health.enabled", true, envBool("HEALTH_ENABLED")},

	{"debug.enabled", false, envBool("DEBUG_ENABLED")},
	{"debug.trace_file", "", envStr("DEBUG_TRACE_FILE")},
}

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	for _, s := range settings {
		if fn, ok := s.def.(func() string); ok {
			v.SetDefault(s.key, fn())
			continue
		}
		v.SetDefault(s.key, s.def)
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.X.RequestTimeout < 0 {
		problems = append(problems, "x.request_timeout must not be negative")
	}
	if c.X.Retry.MaxAttempts < 1 {
		problems = append(problems, "x.retry.max_attempts must be at least 1")
	}
	if c.X.Retry.MaxWait < 0 {
		problems = append(problems, "x.retry.max_wait must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func ensureIdentity(ctx context.Context) error {
	if appIdentity != nil {
		return nil
	}
	identity, err := appid.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load app identity: %w", err)
	}
	appIdentity = identity
	return nil
}

func normalize(cfg *Config) {
	cfg.X.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.X.BaseURL), "/")
	cfg.X.ConsumerKey = strings.TrimSpace(cfg.X.ConsumerKey)
	cfg.X.ConsumerSecret = strings.TrimSpace(cfg.X.ConsumerSecret)
	cfg.X.AccessToken = strings.TrimSpace(cfg.X.AccessToken)
	cfg.X.AccessTokenSecret = strings.TrimSpace(cfg.X.AccessTokenSecret)
	cfg.Queue.Approver = strings.TrimSpace(cfg.Queue.Approver)
	cfg.Logging.Profile = strings.ToUpper(strings.TrimSpace(cfg.Logging.Profile))

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
}

// getEnvSpecs maps {PREFIX}{NAME} variables onto their config paths.
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()
	specs := make([]EnvVarSpec, 0, len(settings))
	for _, s := range settings {
		if s.env.Name == "" {
			continue
		}
		spec := s.env
		spec.Name = prefix + spec.Name
		spec.Path = strings.Split(s.key, ".")
		specs = append(specs, spec)
	}
	return specs
}

func applyLegacyCredentialEnv(envOverrides map[string]any) {
	x := ensureMap(envOverrides, "x")
	for name, key := range legacyCredentialEnv {
		if existing, ok := x[key].(string); ok && strings.TrimSpace(existing) != "" {
			continue
		}
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			x[key] = value
		}
	}
	if len(x) == 0 {
		delete(envOverrides, "x")
	}
}

func envPrefix() string {
	prefix := appid.Default.EnvPrefix
	if appIdentity != nil && appIdentity.EnvPrefix != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// appNames returns the config and binary names from the loaded identity,
// falling back to the built-in one.
func appNames() (configName, binaryName string) {
	configName, binaryName = appid.Default.ConfigName, appid.Default.BinaryName
	if appIdentity == nil {
		return configName, binaryName
	}
	if name := strings.TrimSpace(appIdentity.ConfigName); name != "" {
		configName = name
	}
	if name := strings.TrimSpace(appIdentity.BinaryName); name != "" {
		binaryName = name
	}
	return configName, binaryName
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/<app>/config.yaml, or "" when
// no config dir can be resolved.
func DefaultConfigPath() string {
	configName, _ := appNames()
	if dir := strings.TrimSpace(gfconfig.GetAppConfigDir(configName)); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return ""
}

func DefaultDataDir() string {
	configName, _ := appNames()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath places the database in the XDG data dir, or the working
// directory when there is none.
func DefaultStorePath() string {
	configName, binaryName := appNames()
	if dir := strings.TrimSpace(gfconfig.GetAppDataDir(configName)); dir != "" {
		return filepath.Join(dir, binaryName+".db")
	}
	return "./" + binaryName + ".db"
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
