package helpers

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForDatabase(t *testing.T) {
	cfg := &postgres.Config{Host: "db"}

	t.Run("Should retry connection errors until the probe succeeds", func(t *testing.T) {
		calls := 0
		probe := func(context.Context, *postgres.Config) error {
			calls++
			if calls < 3 {
				return core.NewConnectionError("probe", errors.New("connection refused"))
			}
			return nil
		}
		require.NoError(t, WaitForDatabase(context.Background(), cfg, 10*time.Second, probe))
		assert.Equal(t, 3, calls)
	})

	t.Run("Should stop on errors that retrying cannot fix", func(t *testing.T) {
		calls := 0
		probe := func(context.Context, *postgres.Config) error {
			calls++
			return core.NewConfigurationError("probe", errors.New("bad dsn"))
		}
		err := WaitForDatabase(context.Background(), cfg, 10*time.Second, probe)
		assert.True(t, core.IsConfiguration(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("Should give up when the wait budget is spent", func(t *testing.T) {
		probe := func(context.Context, *postgres.Config) error {
			return core.NewConnectionError("probe", errors.New("connection refused"))
		}
		err := WaitForDatabase(context.Background(), cfg, 300*time.Millisecond, probe)
		assert.True(t, core.IsConnection(err))
	})
}

func TestWriteJSON(t *testing.T) {
	t.Run("Should write indented JSON without color to buffers", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteJSON(&buf, map[string]int{"applied": 2}))
		assert.Equal(t, "{\n  \"applied\": 2\n}\n", buf.String())
	})
}

func TestOutputFormat(t *testing.T) {
	t.Run("Should accept json and table only", func(t *testing.T) {
		_, err := OutputFormat("yaml")
		assert.Error(t, err)
		f, err := OutputFormat("table")
		require.NoError(t, err)
		assert.Equal(t, "table", f)
	})
}
