package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger backs one-shot commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger backs `serve` (STRUCTURED profile, JSON on stderr).
	ServerLogger *logging.Logger
)

// EnvironmentVar names the deployment environment stamped on server logs.
const EnvironmentVar = "XPANEL_ENV"

// fatal reports a logger that could not be built. Nothing else can log yet.
var fatal = func(msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	os.Exit(int(foundry.ExitConfigInvalid))
}

func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal("failed to initialize CLI logger", err)
		return
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger builds the server logger. A non-empty namespace is added
// as a static field so log lines line up with the metric series.
func InitServerLogger(serviceName, logLevel string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}
	logger, err := logging.New(serverLoggerConfig(serviceName, logLevel, ns))
	if err != nil {
		fatal("failed to initialize server logger", err)
		return
	}
	ServerLogger = logger
}

func serverLoggerConfig(serviceName, logLevel, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace != "" {
		static["namespace"] = namespace
	}
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  environment(),
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{{
			Type:    "console",
			Format:  "json",
			Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
		}},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// Logger returns whichever logger is active, preferring the server one.
// It is nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// parseLogLevel normalizes a configured level. Unknown values become INFO.
func parseLogLevel(level string) string {
	switch level = strings.ToUpper(strings.TrimSpace(level)); level {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
		return level
	case "WARNING":
		return "WARN"
	}
	return "INFO"
}

func environment() string {
	if env := strings.TrimSpace(os.Getenv(EnvironmentVar)); env != "" {
		return env
	}
	return "production"
}
