package monitoring

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/compozy/modelstore/engine/infra/monitoring/metrics"
	"github.com/compozy/modelstore/pkg/logger"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "modelstore"

// Service owns the meter provider that pool and system metrics report to.
// A disabled Service hands out a no-op provider.
type Service struct {
	provider    metric.MeterProvider
	sdk         *sdkmetric.MeterProvider
	registry    *prom.Registry
	system      metric.Registration
	initialized bool
	initErr     error
}

func newDisabledService(initErr error) *Service {
	return &Service{provider: noop.NewMeterProvider(), initErr: initErr}
}

// NewMonitoringService creates a Prometheus-backed service, or a no-op one
// when enabled is false.
func NewMonitoringService(ctx context.Context, enabled bool) (*Service, error) {
	log := logger.FromContext(ctx)
	if !enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newDisabledService(nil), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithoutScopeInfo(),
		prometheus.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	s := &Service{
		provider:    provider,
		sdk:         provider,
		registry:    registry,
		initialized: true,
	}
	s.system, err = registerSystemMetrics(ctx, provider.Meter(meterName))
	if err != nil {
		log.Warn("Failed to register system metrics", "error", err)
	}
	log.Debug("Monitoring service initialized")
	return s, nil
}

// NewMonitoringServiceWithFallback degrades to a no-op service instead of
// failing.
func NewMonitoringServiceWithFallback(ctx context.Context, enabled bool) *Service {
	s, err := NewMonitoringService(ctx, enabled)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize monitoring, using no-op implementation", "error", err)
		return newDisabledService(err)
	}
	return s
}

// MeterProvider returns the provider to hand to postgres.WithMeterProvider.
func (s *Service) MeterProvider() metric.MeterProvider {
	return s.provider
}

func (s *Service) IsInitialized() bool {
	return s.initialized
}

func (s *Service) InitializationError() error {
	return s.initErr
}

// WriteText writes every gathered family in the Prometheus text
// exposition format.
func (s *Service) WriteText(w io.Writer) error {
	if !s.initialized {
		return errors.New("monitoring service not initialized")
	}
	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Shutdown flushes and stops the provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.system != nil {
		if err := s.system.Unregister(); err != nil {
			logger.FromContext(ctx).Warn("Failed to unregister system metrics", "error", err)
		}
		s.system = nil
	}
	if s.sdk != nil {
		return s.sdk.Shutdown(ctx)
	}
	return nil
}

// UptimeMetricName is exported for dashboards and tests.
var UptimeMetricName = metrics.MetricName("uptime_seconds")
