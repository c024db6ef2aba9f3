package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	data       map[string]any
	sourceType SourceType
	loadErr    error
}

func (m *mockSource) Load() (map[string]any, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data, nil
}

func (m *mockSource) Type() SourceType {
	return m.sourceType
}

func TestLoader_Load(t *testing.T) {
	t.Run("Should load default configuration when no sources provided", func(t *testing.T) {
		cfg, err := NewService().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 20, cfg.Database.MaxOpenConns)
		assert.Equal(t, 2*time.Minute, cfg.Database.MigrationLockTimeout)
		assert.Equal(t, "development", cfg.Runtime.Environment)
	})

	t.Run("Should apply sources in precedence order", func(t *testing.T) {
		yamlSource := &mockSource{
			data: map[string]any{
				"database": map[string]any{"host": "yaml.internal", "port": "6432"},
			},
			sourceType: SourceYAML,
		}
		cliSource := &mockSource{
			data:       map[string]any{"database": map[string]any{"host": "cli.internal"}},
			sourceType: SourceCLI,
		}
		cfg, err := NewService().Load(context.Background(), yamlSource, cliSource)
		require.NoError(t, err)
		assert.Equal(t, "cli.internal", cfg.Database.Host)
		assert.Equal(t, "6432", cfg.Database.Port)
		assert.Equal(t, "postgres", cfg.Database.User)
	})

	t.Run("Should decode durations and secrets from strings", func(t *testing.T) {
		source := &mockSource{
			data: map[string]any{
				"database": map[string]any{"password": "s3cret", "ping_timeout": "750ms"},
			},
			sourceType: SourceYAML,
		}
		cfg, err := NewService().Load(context.Background(), source)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.Database.Password.Value())
		assert.Equal(t, "[REDACTED]", cfg.Database.Password.String())
		assert.Equal(t, 750*time.Millisecond, cfg.Database.PingTimeout)
	})

	t.Run("Should let declared environment variables win", func(t *testing.T) {
		t.Setenv("DB_HOST", "env.internal")
		t.Setenv("RUNTIME_LOG_LEVEL", "debug")
		source := &mockSource{
			data:       map[string]any{"database": map[string]any{"host": "yaml.internal"}},
			sourceType: SourceYAML,
		}
		svc := NewService()
		cfg, err := svc.Load(context.Background(), source)
		require.NoError(t, err)
		assert.Equal(t, "env.internal", cfg.Database.Host)
		assert.Equal(t, "debug", cfg.Runtime.LogLevel)
		assert.Equal(t, SourceEnv, svc.GetSource("database.host"))
	})

	t.Run("Should fail on invalid values", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"runtime": map[string]any{"environment": "moon"}},
			sourceType: SourceYAML,
		}
		_, err := NewService().Load(context.Background(), source)
		assert.ErrorContains(t, err, "configuration validation failed")
	})

	t.Run("Should surface source failures", func(t *testing.T) {
		_, err := NewService().Load(context.Background(), &mockSource{
			sourceType: SourceYAML,
			loadErr:    errors.New("boom"),
		})
		assert.ErrorContains(t, err, "boom")
	})
}

func TestLoader_Validate(t *testing.T) {
	svc := NewService()

	t.Run("Should accept the defaults", func(t *testing.T) {
		assert.NoError(t, svc.Validate(Default()))
	})

	t.Run("Should reject a single connection pool", func(t *testing.T) {
		cfg := Default()
		cfg.Database.MaxOpenConns = 1
		assert.ErrorContains(t, svc.Validate(cfg), "max_open_conns")
	})

	t.Run("Should reject more idle than open connections", func(t *testing.T) {
		cfg := Default()
		cfg.Database.MaxOpenConns = 4
		cfg.Database.MaxIdleConns = 5
		assert.Error(t, svc.Validate(cfg))
	})

	t.Run("Should require a conn string or discrete fields", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Host = ""
		assert.ErrorContains(t, svc.Validate(cfg), "incomplete")
		cfg.Database.ConnString = "postgres://u@db/modelstore"
		assert.NoError(t, svc.Validate(cfg))
	})

	t.Run("Should reject nil", func(t *testing.T) {
		assert.Error(t, svc.Validate(nil))
	})
}

func TestLoader_GetSource(t *testing.T) {
	t.Run("Should attribute keys to the layer that set them", func(t *testing.T) {
		svc := NewService()
		_, err := svc.Load(context.Background(), &mockSource{
			data:       map[string]any{"database": map[string]any{"name": "orders"}},
			sourceType: SourceCLI,
		})
		require.NoError(t, err)
		assert.Equal(t, SourceCLI, svc.GetSource("database.name"))
		assert.Equal(t, SourceDefault, svc.GetSource("database.user"))
		assert.Equal(t, SourceDefault, svc.GetSource("unknown.key"))
	})
}

func TestTransformEnvKey(t *testing.T) {
	t.Run("Should map section prefixes to nested paths", func(t *testing.T) {
		assert.Equal(t, "runtime.log_level", transformEnvKey("RUNTIME_LOG_LEVEL"))
		assert.Equal(t, "database.max_open_conns", transformEnvKey("DATABASE__MAX_OPEN_CONNS"))
		assert.Equal(t, "home", transformEnvKey("HOME"))
		assert.Equal(t, "", transformEnvKey("__"))
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should expose declared variables and mark secrets", func(t *testing.T) {
		found := make(map[string]EnvMapping)
		for _, m := range EnvMappings() {
			found[m.EnvVar] = m
		}
		assert.Equal(t, "database.password", found["DB_PASSWORD"].ConfigPath)
		assert.True(t, found["DB_PASSWORD"].Sensitive)
		assert.Equal(t, "runtime.migrate_wait", found["RUNTIME_MIGRATE_WAIT"].ConfigPath)
		assert.True(t, IsSensitiveConfigPath("database.password"))
		assert.False(t, IsSensitiveConfigPath("database.host"))
	})
}

func TestDatabaseConfig_ToPostgres(t *testing.T) {
	t.Run("Should carry every pool setting", func(t *testing.T) {
		db := Default().Database
		db.Password = "pw"
		pg := db.ToPostgres()
		assert.Equal(t, "pw", pg.Password)
		assert.Equal(t, db.MaxOpenConns, pg.MaxOpenConns)
		assert.Equal(t, db.MigrationLockTimeout, pg.MigrationLockTimeout)
		assert.Equal(t, db.ProbeTimeout, pg.ProbeTimeout)
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should fall back to defaults", func(t *testing.T) {
		assert.Equal(t, Default(), FromContext(context.Background()))
		cfg := Default()
		cfg.Runtime.LogLevel = "warn"
		assert.Same(t, cfg, FromContext(ContextWithConfig(context.Background(), cfg)))
	})
}

func TestValues(t *testing.T) {
	t.Run("Should flatten values and redact secrets", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Password = "hunter2"
		values := Values(cfg)
		assert.Equal(t, "[REDACTED]", values["database.password"])
		assert.Equal(t, "2m0s", values["database.migration_lock_timeout"])
		assert.Equal(t, 20, values["database.max_open_conns"])
		assert.Empty(t, Values(nil))
	})
}
