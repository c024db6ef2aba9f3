package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	monitoringmetrics "github.com/compozy/modelstore/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPoolLabel  = "default"
	postgresMeterName = "modelstore.postgres"
)

// poolMetrics observes one Pool: gauges are read from Pool.Stats on
// collection and lease waits are recorded as they happen.
type poolMetrics struct {
	attrs        metric.MeasurementOption
	wait         metric.Float64Histogram
	registration metric.Registration
}

// attachPoolMetrics registers pool gauges and the lease wait histogram.
// A nil provider falls back to the global one.
func attachPoolMetrics(provider metric.MeterProvider, label string, pool *Pool) (*poolMetrics, error) {
	if pool == nil {
		return nil, nil
	}
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(postgresMeterName)
	gauge := func(name, desc string) (metric.Int64ObservableGauge, error) {
		return meter.Int64ObservableGauge(
			monitoringmetrics.MetricNameWithSubsystem("postgres", name),
			metric.WithDescription(desc),
		)
	}
	open, err := gauge("connections_open", "Number of open Postgres connections")
	if err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	inUse, err := gauge("connections_in_use", "Number of Postgres connections currently in use")
	if err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	idle, err := gauge("connections_idle", "Number of idle Postgres connections")
	if err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	maxConns, err := gauge("max_open_connections", "Configured Postgres connection pool size")
	if err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	leases, err := gauge("leases_in_use", "Number of leases handed out and not yet released")
	if err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	wait, err := meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("postgres", "lease_wait_duration_seconds"),
		metric.WithDescription("Time spent waiting for a connection lease"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.LeaseWaitBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	attrs := metric.WithAttributes(attribute.String("pool", label))
	reg, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			stats := pool.Stats()
			observer.ObserveInt64(open, int64(stats.Total), attrs)
			observer.ObserveInt64(inUse, int64(stats.Acquired), attrs)
			observer.ObserveInt64(idle, int64(stats.Idle), attrs)
			observer.ObserveInt64(maxConns, int64(stats.Max), attrs)
			observer.ObserveInt64(leases, stats.Leased, attrs)
			return nil
		},
		open, inUse, idle, maxConns, leases,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: register metrics callback: %w", err)
	}
	return &poolMetrics{attrs: attrs, wait: wait, registration: reg}, nil
}

func (p *poolMetrics) recordWait(ctx context.Context, d time.Duration) {
	if p == nil || p.wait == nil {
		return
	}
	p.wait.Record(ctx, d.Seconds(), p.attrs)
}

func (p *poolMetrics) unregister() {
	if p == nil || p.registration == nil {
		return
	}
	_ = p.registration.Unregister()
}

func computePoolLabel(cfg *Config) string {
	if cfg == nil {
		return defaultPoolLabel
	}
	raw := []string{cfg.Host, cfg.Port, cfg.DBName}
	parts := make([]string, 0, len(raw))
	for _, c := range raw {
		if s := sanitizeLabelComponent(c); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return defaultPoolLabel
	}
	joined := strings.Join(parts, "-")
	return strings.Trim(strings.Trim(joined, "-"), "_")
}

func sanitizeLabelComponent(component string) string {
	trimmed := strings.TrimSpace(component)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	var builder strings.Builder
	for _, r := range lower {
		if isLabelRune(r) {
			builder.WriteRune(r)
			continue
		}
		builder.WriteRune('_')
	}
	return strings.Trim(builder.String(), "_")
}

func isLabelRune(r rune) bool {
	if r >= 'a' && r <= 'z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '-', '.', ':':
		return true
	default:
		return false
	}
}
