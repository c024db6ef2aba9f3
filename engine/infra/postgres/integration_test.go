package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startDatabase runs a disposable PostgreSQL container and returns a config
// pointing at it.
func startDatabase(ctx context.Context, t *testing.T) *postgres.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("test-db"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pgContainer.Terminate(terminateCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %s", err)
		}
	})
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return &postgres.Config{ConnString: connStr, MaxOpenConns: 4}
}

func TestSetup_Integration(t *testing.T) {
	ctx := context.Background()
	cfg := startDatabase(ctx, t)

	t.Run("Should apply migrations before publishing the pool", func(t *testing.T) {
		m := postgres.NewManager()
		pool, err := m.Setup(ctx, cfg)
		require.NoError(t, err)
		defer m.Close(ctx)
		lease, err := m.Acquire(ctx)
		require.NoError(t, err)
		defer lease.Release()
		var exists bool
		err = lease.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'documents')").
			Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists)
		states, err := postgres.MigrationStatus(ctx, pool)
		require.NoError(t, err)
		require.NotEmpty(t, states)
		for _, s := range states {
			assert.True(t, s.Applied, s.Path)
		}
	})

	t.Run("Should skip already applied migrations and serialize concurrent runners", func(t *testing.T) {
		const instances = 3
		var wg sync.WaitGroup
		errs := make([]error, instances)
		managers := make([]*postgres.Manager, instances)
		for i := range instances {
			managers[i] = postgres.NewManager()
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = managers[i].Setup(ctx, cfg)
			}()
		}
		wg.Wait()
		for i := range instances {
			assert.NoError(t, errs[i])
			managers[i].Close(ctx)
		}
	})

	t.Run("Should replace connections killed behind the pool's back", func(t *testing.T) {
		m := postgres.NewManager()
		_, err := m.Setup(ctx, &postgres.Config{ConnString: cfg.ConnString, MaxOpenConns: 2})
		require.NoError(t, err)
		defer m.Close(ctx)
		victim, err := m.Acquire(ctx)
		require.NoError(t, err)
		var pid int32
		require.NoError(t, victim.QueryRow(ctx, "SELECT pg_backend_pid()").Scan(&pid))
		killer, err := m.Acquire(ctx)
		require.NoError(t, err)
		_, err = killer.Exec(ctx, "SELECT pg_terminate_backend($1)", pid)
		require.NoError(t, err)
		killer.Release()
		victim.Release()
		for range 4 {
			lease, err := m.Acquire(ctx)
			require.NoError(t, err)
			var one int
			require.NoError(t, lease.QueryRow(ctx, "SELECT 1").Scan(&one))
			lease.Release()
		}
	})
}
