package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/ragly/xpanel/internal/xapi"
)

// Config represents the complete application configuration. Values are
// layered: built-in defaults, then the user config file, then environment
// variables, then runtime overrides.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	X       XConfig       `mapstructure:"x" yaml:"x"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Health  HealthConfig  `mapstructure:"health" yaml:"health"`
	Debug   DebugConfig   `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AdminToken enables POST /admin/signal when set.
	AdminToken string `mapstructure:"admin_token" yaml:"admin_token"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
}

// XConfig holds X API credentials and client tuning.
type XConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	ConsumerKey       string        `mapstructure:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret    string        `mapstructure:"consumer_secret" yaml:"consumer_secret"`
	AccessToken       string        `mapstructure:"access_token" yaml:"access_token"`
	AccessTokenSecret string        `mapstructure:"access_token_secret" yaml:"access_token_secret"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	UserIDTTL         time.Duration `mapstructure:"user_id_ttl" yaml:"user_id_ttl"`
	MinRequestGap     time.Duration `mapstructure:"min_request_gap" yaml:"min_request_gap"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Retry             RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig bounds the optional in-process wait on upstream 429s.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxWait     time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// QueueConfig configures the tweet approval queue.
type QueueConfig struct {
	// Approver is recorded on decisions made without an explicit operator name.
	Approver string `mapstructure:"approver" yaml:"approver"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// TraceFile, when set, records every X API call outcome as NDJSON.
	TraceFile string `mapstructure:"trace_file" yaml:"trace_file"`
}

// Credentials returns the trimmed OAuth credentials.
func (c XConfig) Credentials() xapi.Credentials {
	return xapi.Credentials{
		ConsumerKey:       c.ConsumerKey,
		ConsumerSecret:    c.ConsumerSecret,
		AccessToken:       c.AccessToken,
		AccessTokenSecret: c.AccessTokenSecret,
	}.Trimmed()
}

// ClientOptions maps config onto client options. Clock, sleep, HTTP client
// and observer are left for the caller.
func (c XConfig) ClientOptions() xapi.Options {
	return xapi.Options{
		BaseURL:        c.BaseURL,
		CacheTTL:       c.CacheTTL,
		UserIDTTL:      c.UserIDTTL,
		MinRequestGap:  c.MinRequestGap,
		RequestTimeout: c.RequestTimeout,
		Retry: xapi.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			MaxWait:     c.Retry.MaxWait,
		},
	}
}

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted() Config {
	out := c
	out.X.ConsumerKey = mask(c.X.ConsumerKey)
	out.X.ConsumerSecret = mask(c.X.ConsumerSecret)
	out.X.AccessToken = mask(c.X.AccessToken)
	out.X.AccessTokenSecret = mask(c.X.AccessTokenSecret)
	out.Store.AuthToken = mask(c.Store.AuthToken)
	out.Server.AdminToken = mask(c.Server.AdminToken)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Display renders c as nested maps keyed by the yaml tags, with durations
// as strings like "1.1s". Secrets are masked.
func (c Config) Display() map[string]any {
	out, _ := displayValue(reflect.ValueOf(c.Redacted())).(map[string]any)
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

func displayValue(v reflect.Value) any {
	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}
	if v.Kind() != reflect.Struct {
		return v.Interface()
	}

	out := make(map[string]any, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		key := strings.Split(field.Tag.Get("yaml"), ",")[0]
		if key == "" || key == "-" {
			continue
		}
		out[key] = displayValue(v.Field(i))
	}
	return out
}
