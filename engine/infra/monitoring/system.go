package monitoring

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/compozy/modelstore/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Build variables to be set via ldflags during compilation
// Example: go build -ldflags "-X 'github.com/compozy/modelstore/engine/infra/monitoring.Version=v1.0.0'"
var (
	Version    = "unknown"
	CommitHash = "unknown"
)

// registerSystemMetrics reports build info and uptime through one callback.
func registerSystemMetrics(_ context.Context, meter metric.Meter) (metric.Registration, error) {
	buildInfo, err := meter.Int64ObservableGauge(
		metrics.MetricName("build_info"),
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		return nil, err
	}
	uptime, err := meter.Float64ObservableGauge(
		UptimeMetricName,
		metric.WithDescription("Process uptime in seconds"),
	)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	version, commit, goVersion := getBuildInfo()
	attrs := metric.WithAttributes(
		attribute.String("version", version),
		attribute.String("commit_hash", commit),
		attribute.String("go_version", goVersion),
	)
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(buildInfo, 1, attrs)
		o.ObserveFloat64(uptime, time.Since(start).Seconds())
		return nil
	}, buildInfo, uptime)
}

// getBuildInfo prefers ldflags values and falls back to module build info.
func getBuildInfo() (version, commit, goVersion string) {
	version = Version
	commit = CommitHash
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "unknown" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		if commit == "unknown" {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
					break
				}
			}
		}
	}
	return version, commit, runtime.Version()
}
