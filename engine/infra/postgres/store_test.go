package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPoolConfig(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		cfg, err := buildPoolConfig(&Config{Host: "localhost"})
		require.NoError(t, err)
		assert.Equal(t, int32(defaultMaxConns), cfg.MaxConns)
		assert.Equal(t, int32(defaultMinConns), cfg.MinConns)
		assert.Equal(t, defaultHealthCheckPeriod, cfg.HealthCheckPeriod)
		assert.Equal(t, defaultConnectTimeout, cfg.ConnConfig.ConnectTimeout)
		assert.NotNil(t, cfg.PrepareConn)
	})
	t.Run("Should honor explicit bounds and lifetimes", func(t *testing.T) {
		cfg, err := buildPoolConfig(&Config{
			ConnString:      "postgres://u:p@db:6543/app?sslmode=disable",
			MaxOpenConns:    4,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: time.Minute,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(4), cfg.MaxConns)
		assert.Equal(t, int32(4), cfg.MinConns)
		assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
		assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
		assert.Equal(t, "db", cfg.ConnConfig.Host)
		assert.Equal(t, uint16(6543), cfg.ConnConfig.Port)
	})
	t.Run("Should fail on malformed connection strings", func(t *testing.T) {
		_, err := buildPoolConfig(&Config{ConnString: "postgres://%zz"})
		assert.Error(t, err)
	})
}

func TestOpen(t *testing.T) {
	t.Run("Should classify invalid settings as configuration errors", func(t *testing.T) {
		_, err := Open(context.Background(), &Config{})
		assert.True(t, core.IsConfiguration(err))
		_, err = Open(context.Background(), &Config{ConnString: "postgres://%zz"})
		assert.True(t, core.IsConfiguration(err))
	})
}

type fakeConn struct{ err error }

func (f fakeConn) Ping(context.Context) error { return f.err }

func TestProbeConn(t *testing.T) {
	t.Run("Should discard connections that fail the ping", func(t *testing.T) {
		assert.True(t, probeConn(context.Background(), fakeConn{}, time.Second))
		assert.False(t, probeConn(context.Background(), fakeConn{err: errors.New("broken pipe")}, time.Second))
	})
}

func TestDSN(t *testing.T) {
	t.Run("Should build a URL from discrete fields", func(t *testing.T) {
		got := dsn(&Config{Host: "db", Port: "5433", User: "app", Password: "p@ss", DBName: "main"})
		assert.Equal(t, "postgres://app:p%40ss@db:5433/main?sslmode=disable", got)
	})
	t.Run("Should prefer the connection string", func(t *testing.T) {
		assert.Equal(t, "postgres://x", dsn(&Config{ConnString: "postgres://x", Host: "db"}))
	})
}
