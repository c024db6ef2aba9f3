package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level LogLevel) Logger {
	return NewLogger(&Config{Level: level, Output: buf, JSON: true, TimeFormat: "15:04:05"})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		records = append(records, rec)
	}
	return records
}

func TestLogger_With(t *testing.T) {
	t.Run("Should carry bound fields on every record of the child only", func(t *testing.T) {
		var buf bytes.Buffer
		parent := jsonLogger(&buf, DebugLevel)
		child := parent.With("collection", "users")
		child.Info("Document created", "id", "u1")
		parent.Info("Database pool ready")

		records := decodeLines(t, &buf)
		require.Len(t, records, 2)
		assert.Equal(t, "users", records[0]["collection"])
		assert.Equal(t, "u1", records[0]["id"])
		assert.Equal(t, "Document created", records[0]["msg"])
		assert.NotContains(t, records[1], "collection")
	})
}

func TestLogger_Levels(t *testing.T) {
	t.Run("Should drop records below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := jsonLogger(&buf, WarnLevel)
		log.Debug("lease acquired")
		log.Info("pool ready")
		log.Warn("slow migration")
		log.Error("migration failed")

		records := decodeLines(t, &buf)
		require.Len(t, records, 2)
		assert.Equal(t, "warn", records[0]["level"])
		assert.Equal(t, "error", records[1]["level"])
	})

	t.Run("Should write nothing at the disabled level", func(t *testing.T) {
		var buf bytes.Buffer
		log := jsonLogger(&buf, DisabledLevel)
		log.Error("migration failed")
		log.With("attempt", 3).Error("still failing")
		assert.Empty(t, buf.String())
	})

	t.Run("Should map every named level onto charm levels", func(t *testing.T) {
		assert.Equal(t, charmlog.DebugLevel, DebugLevel.ToCharmlogLevel())
		assert.Equal(t, charmlog.ErrorLevel, ErrorLevel.ToCharmlogLevel())
		assert.Greater(t, int(DisabledLevel.ToCharmlogLevel()), int(charmlog.FatalLevel))
		assert.Equal(t, charmlog.InfoLevel, NoLevel.ToCharmlogLevel())
	})
}

func TestParseLevel(t *testing.T) {
	t.Run("Should normalize known levels and fall back to info", func(t *testing.T) {
		assert.Equal(t, DebugLevel, ParseLevel(" DEBUG "))
		assert.Equal(t, DisabledLevel, ParseLevel("disabled"))
		assert.Equal(t, InfoLevel, ParseLevel("verbose"))
		assert.Equal(t, InfoLevel, ParseLevel(""))
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should return the logger attached to the context", func(t *testing.T) {
		var buf bytes.Buffer
		attached := jsonLogger(&buf, InfoLevel).With("request", "r1")
		ctx := ContextWithLogger(t.Context(), attached)
		FromContext(ctx).Info("Document deleted")
		records := decodeLines(t, &buf)
		require.Len(t, records, 1)
		assert.Equal(t, "r1", records[0]["request"])
	})

	t.Run("Should fall back to the default logger", func(t *testing.T) {
		assert.Same(t, GetDefault(), FromContext(t.Context()))
		var nilCtx context.Context
		assert.Same(t, GetDefault(), FromContext(nilCtx))
		wrong := context.WithValue(t.Context(), LoggerCtxKey, "not a logger")
		assert.Same(t, GetDefault(), FromContext(wrong))
	})

	t.Run("Should default to a silent logger under go test", func(t *testing.T) {
		assert.True(t, IsTestEnvironment())
		assert.NotNil(t, NewLogger(nil))
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("Should replace the default logger", func(t *testing.T) {
		previous := GetDefault()
		t.Cleanup(func() {
			defaultMu.Lock()
			defaultLogger = previous
			defaultMu.Unlock()
		})
		installed := SetupLogger("warn", true, false)
		assert.Same(t, installed, FromContext(t.Context()))
	})
}

func TestGetLoggerConfig(t *testing.T) {
	t.Run("Should read the logging flags of a command", func(t *testing.T) {
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("log-level", "info", "")
		cmd.Flags().Bool("log-json", false, "")
		cmd.Flags().Bool("log-source", false, "")
		require.NoError(t, cmd.ParseFlags([]string{"--log-level=debug", "--log-json"}))

		level, asJSON, source, err := GetLoggerConfig(cmd)
		require.NoError(t, err)
		assert.Equal(t, "debug", level)
		assert.True(t, asJSON)
		assert.False(t, source)
	})

	t.Run("Should fail when a flag is not declared", func(t *testing.T) {
		_, _, _, err := GetLoggerConfig(&cobra.Command{Use: "bare"})
		assert.Error(t, err)
	})
}
