package helpers

import (
	"context"
	"io"

	"github.com/compozy/modelstore/engine/infra/monitoring"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/pkg/config"
	"github.com/compozy/modelstore/pkg/logger"
)

// SetupManager initializes a pool Manager the way a service does at
// startup, instrumented when runtime.metrics is on. The returned cleanup
// closes the pool and, with metrics on, writes them to metricsOut first.
func SetupManager(ctx context.Context, metricsOut io.Writer) (*postgres.Manager, func(), error) {
	cfg := config.FromContext(ctx)
	mon := monitoring.NewMonitoringServiceWithFallback(ctx, cfg.Runtime.Metrics)
	manager := postgres.NewManager(postgres.WithMeterProvider(mon.MeterProvider()))
	shutdown := func() {
		if err := mon.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Warn("Failed to shut down monitoring", "error", err)
		}
	}
	if _, err := manager.Setup(ctx, cfg.Database.ToPostgres()); err != nil {
		shutdown()
		return nil, nil, err
	}
	cleanup := func() {
		if mon.IsInitialized() {
			if err := mon.WriteText(metricsOut); err != nil {
				logger.FromContext(ctx).Warn("Failed to write metrics", "error", err)
			}
		}
		manager.Close(ctx)
		shutdown()
	}
	return manager, cleanup, nil
}
