package postgres

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/pkg/logger"
	"go.opentelemetry.io/otel/metric"
)

// Opener creates and verifies a pool. It is swapped out in tests.
type Opener func(ctx context.Context, cfg *Config) (*Pool, error)

// Manager owns one pool for its whole lifetime. Setup runs exactly once;
// every later Setup fails with core.ErrAlreadyInitialized, even if the first
// attempt failed.
type Manager struct {
	initialized   atomic.Bool
	pool          atomic.Pointer[Pool]
	opener        Opener
	migrator      Migrator
	meterProvider metric.MeterProvider
}

type Option func(*Manager)

func WithOpener(o Opener) Option {
	return func(m *Manager) { m.opener = o }
}

func WithMigrator(mg Migrator) Option {
	return func(m *Manager) { m.migrator = mg }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) { m.meterProvider = mp }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Setup creates the pool, verifies it and applies pending migrations before
// publishing it. Only the first caller proceeds; concurrent and later
// callers get core.ErrAlreadyInitialized without blocking.
func (m *Manager) Setup(ctx context.Context, cfg *Config) (*Pool, error) {
	if !m.initialized.CompareAndSwap(false, true) {
		return nil, core.ErrAlreadyInitialized
	}
	log := logger.FromContext(ctx)
	opener := m.opener
	if opener == nil {
		opener = func(ctx context.Context, cfg *Config) (*Pool, error) {
			return open(ctx, cfg, m.meterProvider)
		}
	}
	pool, err := opener(ctx, cfg)
	if err != nil {
		log.Error("Failed to open database pool", "error", err)
		return nil, err
	}
	migrator := m.migrator
	if migrator == nil {
		migrator = migratorWithLockTimeout(lockTimeout(cfg))
	}
	if err := migrator(ctx, pool); err != nil {
		pool.Close()
		log.Error("Failed to apply database migrations", "error", err)
		if !core.IsMigration(err) {
			err = core.NewMigrationError("setup", err)
		}
		return nil, err
	}
	m.pool.Store(pool)
	log.Info("Database pool ready")
	return pool, nil
}

func lockTimeout(cfg *Config) time.Duration {
	if cfg == nil {
		return 0
	}
	return cfg.MigrationLockTimeout
}

// Acquire leases a connection from the published pool. Before Setup has
// published a pool it fails with core.ErrNotInitialized.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	pool := m.pool.Load()
	if pool == nil {
		return nil, core.ErrNotInitialized
	}
	return pool.Acquire(ctx)
}

// Pool returns the published pool.
func (m *Manager) Pool() (*Pool, error) {
	pool := m.pool.Load()
	if pool == nil {
		return nil, core.ErrNotInitialized
	}
	return pool, nil
}

// Close shuts the published pool down. The Manager stays initialized.
func (m *Manager) Close(ctx context.Context) {
	pool := m.pool.Load()
	if pool == nil {
		return
	}
	pool.Close()
	logger.FromContext(ctx).Info("Postgres store closed")
}

var defaultManager = NewManager()

// Setup initializes the process-wide pool.
func Setup(ctx context.Context, cfg *Config) (*Pool, error) {
	return defaultManager.Setup(ctx, cfg)
}

// Acquire leases a connection from the process-wide pool.
func Acquire(ctx context.Context) (*Lease, error) {
	return defaultManager.Acquire(ctx)
}

// Default returns the process-wide Manager.
func Default() *Manager { return defaultManager }
