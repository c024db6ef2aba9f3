package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationLockKey            = "modelstore:migrations"
	defaultMigrationLockTimeout = 45 * time.Second
)

// Migrator applies pending schema migrations to a freshly opened pool.
type Migrator func(ctx context.Context, pool *Pool) error

// MigrationState describes one embedded migration.
type MigrationState struct {
	Version   int64     `json:"version"`
	Path      string    `json:"path"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitzero"`
}

// ApplyMigrations acquires a Postgres advisory lock on one lease before
// running migrations through a second lease, so concurrent instances apply
// each version once. The lock is released at the end or when the context is
// canceled.
func ApplyMigrations(ctx context.Context, pool *Pool) error {
	return applyMigrations(ctx, pool, defaultMigrationLockTimeout)
}

func migratorWithLockTimeout(timeout time.Duration) Migrator {
	return func(ctx context.Context, pool *Pool) error {
		return applyMigrations(ctx, pool, timeout)
	}
}

func applyMigrations(ctx context.Context, pool *Pool, lockTimeout time.Duration) error {
	if pool == nil || pool.pgx == nil {
		return core.NewMigrationError("migrate", errors.New("migrations require a pgx connection pool"))
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultMigrationLockTimeout
	}
	log := logger.FromContext(ctx)
	lockLease, err := pool.Acquire(ctx)
	if err != nil {
		return core.NewMigrationError("migrate", err)
	}
	defer lockLease.Release()
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if _, err := lockLease.Exec(lockCtx, "SELECT pg_advisory_lock(hashtext($1))", migrationLockKey); err != nil {
		return core.NewMigrationError("migrate", fmt.Errorf("acquire migration advisory lock: %w", err))
	}
	defer func() {
		if _, err := lockLease.Exec(
			context.WithoutCancel(ctx),
			"SELECT pg_advisory_unlock(hashtext($1))",
			migrationLockKey,
		); err != nil {
			log.Warn("Failed to release migration advisory lock", "error", err)
		}
	}()
	db := migrationDB(pool)
	defer db.Close()
	provider, err := newMigrationProvider(db)
	if err != nil {
		return core.NewMigrationError("migrate", err)
	}
	results, err := provider.Up(ctx)
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		entry := log.With("version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
		if r.Error != nil {
			entry.Error("Migration failed", "error", r.Error)
			continue
		}
		entry.Info("Migration applied")
	}
	if err != nil {
		return core.NewMigrationError("migrate", fmt.Errorf("migrate up: %w", err))
	}
	if len(results) == 0 {
		log.Debug("Database schema is up to date")
	}
	return nil
}

// MigrationStatus lists every embedded migration and whether it is applied.
func MigrationStatus(ctx context.Context, pool *Pool) ([]MigrationState, error) {
	if pool == nil || pool.pgx == nil {
		return nil, core.NewMigrationError("status", errors.New("migrations require a pgx connection pool"))
	}
	db := migrationDB(pool)
	defer db.Close()
	provider, err := newMigrationProvider(db)
	if err != nil {
		return nil, core.NewMigrationError("status", err)
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, core.NewMigrationError("status", err)
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		if s == nil || s.Source == nil {
			continue
		}
		out = append(out, MigrationState{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// migrationDB exposes the pool to database/sql bounded to a single
// connection, so goose runs through exactly one lease.
func migrationDB(pool *Pool) *sql.DB {
	db := stdlib.OpenDBFromPool(pool.pgx)
	db.SetMaxOpenConns(1)
	return db
}

func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return provider, nil
}
