package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultMaxConns           = 20
	defaultMinConns           = 0
	defaultHealthCheckPeriod  = 30 * time.Second
	defaultConnectTimeout     = 5 * time.Second
	defaultPingTimeout        = 3 * time.Second
	defaultProbeTimeout       = 1 * time.Second
	defaultHealthCheckTimeout = 1 * time.Second
)

// Open builds a pool from cfg, installs the checkout liveness probe and
// verifies connectivity. It does not run migrations; Setup does.
func Open(ctx context.Context, cfg *Config) (*Pool, error) {
	return open(ctx, cfg, nil)
}

func open(ctx context.Context, cfg *Config, provider metric.MeterProvider) (*Pool, error) {
	if cfg == nil {
		return nil, core.NewConfigurationError("open", fmt.Errorf("postgres: config is required"))
	}
	if err := cfg.validate(); err != nil {
		return nil, core.NewConfigurationError("open", err)
	}
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, core.NewConfigurationError("open", err)
	}
	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, core.NewConfigurationError("open", fmt.Errorf("postgres: new pool: %w", err))
	}
	pingTimeout := defaultPingTimeout
	if cfg.PingTimeout > 0 {
		pingTimeout = cfg.PingTimeout
	}
	if err := verifyPoolConnection(ctx, pgxPool, pingTimeout); err != nil {
		return nil, core.NewConnectionError("open", err)
	}
	pool := &Pool{pgx: pgxPool, healthCheckTimeout: defaultHealthCheckTimeout}
	if cfg.HealthCheckTimeout > 0 {
		pool.healthCheckTimeout = cfg.HealthCheckTimeout
	}
	pool.instrument(ctx, provider, computePoolLabel(cfg))
	logStoreInitialization(ctx, cfg, poolCfg.MaxConns, poolCfg.MinConns)
	return pool, nil
}

// instrument attaches pool metrics. Metric failures never fail the pool.
func (p *Pool) instrument(ctx context.Context, provider metric.MeterProvider, label string) {
	m, err := attachPoolMetrics(provider, label, p)
	if err != nil {
		logger.FromContext(ctx).With("err", err).Warn("Postgres metrics not initialized; continuing without metrics")
		return
	}
	p.metrics = m
}

// Probe opens a throwaway pool, pings it and closes it again. It never
// touches the one-shot Setup guard.
func Probe(ctx context.Context, cfg *Config) error {
	pool, err := open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

// clampIntToInt32WithLimit clamps value to [0, limit] and int32 bounds.
// Non-positive values return 0, and value is clamped to the provided limit and to MaxInt32.
func clampIntToInt32WithLimit(value int, limit int32) int32 {
	if value <= 0 || limit <= 0 {
		return 0
	}
	if value > int(math.MaxInt32) {
		if limit < math.MaxInt32 {
			return limit
		}
		return math.MaxInt32
	}
	if value >= int(limit) {
		return limit
	}
	return int32(value)
}

// buildPoolConfig parses the DSN and applies pool settings and the probe.
func buildPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	maxConns, minConns := deriveConnectionBounds(cfg)
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	} else {
		poolCfg.HealthCheckPeriod = defaultHealthCheckPeriod
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	} else {
		poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	applyLifetimeSettings(cfg, poolCfg)
	probeTimeout := defaultProbeTimeout
	if cfg.ProbeTimeout > 0 {
		probeTimeout = cfg.ProbeTimeout
	}
	installLivenessProbe(poolCfg, probeTimeout)
	return poolCfg, nil
}

// installLivenessProbe pings every connection before it is handed out.
// Returning false with a nil error makes pgxpool destroy the connection and
// retry the checkout on a fresh one, so callers never see a dead link.
func installLivenessProbe(poolCfg *pgxpool.Config, timeout time.Duration) {
	prevPrepare := poolCfg.PrepareConn
	poolCfg.PrepareConn = func(ctx context.Context, conn *pgx.Conn) (bool, error) {
		if prevPrepare != nil {
			ok, err := prevPrepare(ctx, conn)
			if !ok || err != nil {
				return ok, err
			}
		}
		return probeConn(ctx, conn, timeout), nil
	}
}

func probeConn(ctx context.Context, conn interface{ Ping(context.Context) error }, timeout time.Duration) bool {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pctx); err != nil {
		logger.FromContext(ctx).Debug("Discarding dead connection", "error", err)
		return false
	}
	return true
}

// deriveConnectionBounds computes max/min connections respecting defaults and limits.
func deriveConnectionBounds(cfg *Config) (int32, int32) {
	maxConns := int32(defaultMaxConns)
	if cfg.MaxOpenConns > 0 {
		if cfg.MaxOpenConns > int(math.MaxInt32) {
			maxConns = math.MaxInt32
		} else {
			maxConns = int32(cfg.MaxOpenConns)
		}
	}
	minConns := int32(defaultMinConns)
	if cfg.MaxIdleConns > 0 {
		if candidate := clampIntToInt32WithLimit(cfg.MaxIdleConns, maxConns); candidate > 0 {
			minConns = candidate
		}
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	return maxConns, minConns
}

// applyLifetimeSettings applies connection lifetime and idle time configuration.
func applyLifetimeSettings(cfg *Config, poolCfg *pgxpool.Config) {
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
}

// verifyPoolConnection pings the pool and cleans up on failure.
func verifyPoolConnection(ctx context.Context, pool *pgxpool.Pool, pingTimeout time.Duration) error {
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// logStoreInitialization emits a standardized initialization message.
func logStoreInitialization(ctx context.Context, cfg *Config, maxConns int32, minConns int32) {
	logger.FromContext(ctx).With(
		"store_driver", "postgres",
		"host", cfg.Host,
		"port", cfg.Port,
		"db_name", cfg.DBName,
		"ssl_mode", cfg.SSLMode,
		"max_conns", maxConns,
		"min_conns", minConns,
	).Info("Store initialized")
}
