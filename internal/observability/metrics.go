package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// DefaultMetricsPort is used when the exporter's bound port cannot be read.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem receives every metric the app emits. It stays nil
	// until InitMetrics runs, and the recorders in internal/metrics treat
	// nil as "metrics off".
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint. It is nil when metrics
	// are disabled.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// MetricsOptions configures the telemetry pipeline.
type MetricsOptions struct {
	Service   string
	Namespace string
	// Port for the exporter; 0 picks a free port.
	Port    int
	Enabled bool
}

// InitMetrics builds the telemetry system. With Enabled false a disabled
// system is installed so emit calls stay cheap no-ops and no port is bound.
func InitMetrics(opts MetricsOptions) error {
	if !opts.Enabled {
		sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false})
		if err != nil {
			return err
		}
		TelemetrySystem = sys
		PrometheusExporter = nil
		metricsPort = 0
		return nil
	}

	port := opts.Port
	if port < 0 {
		port = 0
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = opts.Service
	}

	exporter := exporters.NewPrometheusExporter(namespace, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return err
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return err
	}

	metricsPort = port
	if bound, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = bound
	} else if port == 0 {
		metricsPort = DefaultMetricsPort
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// StopMetrics shuts the exporter down and clears the globals.
func StopMetrics() error {
	var err error
	if PrometheusExporter != nil {
		err = PrometheusExporter.Stop()
	}
	PrometheusExporter = nil
	TelemetrySystem = nil
	metricsPort = 0
	return err
}

// GetMetricsPort returns the port the Prometheus exporter is listening on
func GetMetricsPort() int {
	return metricsPort
}

// MetricsURL is the loopback scrape URL of the running exporter.
func MetricsURL() string {
	port := metricsPort
	if port == 0 {
		port = DefaultMetricsPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
