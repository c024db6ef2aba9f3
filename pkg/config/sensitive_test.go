package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabasePassword(t *testing.T) {
	cfg := Default()
	cfg.Database.Password = SensitiveString("s3cr3t")

	t.Run("Should hide the password when the config is printed", func(t *testing.T) {
		assert.NotContains(t, fmt.Sprintf("%v", cfg.Database), "s3cr3t")
		assert.NotContains(t, fmt.Sprintf("%s", cfg.Database.Password), "s3cr3t")
	})

	t.Run("Should hide the password when the config is encoded", func(t *testing.T) {
		data, err := json.Marshal(cfg)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "s3cr3t")
		assert.Contains(t, string(data), redacted)
	})

	t.Run("Should hide the password in displayed values", func(t *testing.T) {
		assert.Equal(t, redacted, Values(cfg)["database.password"])
		assert.True(t, IsSensitiveConfigPath("database.password"))
	})

	t.Run("Should hand the clear password to the pool", func(t *testing.T) {
		assert.Equal(t, "s3cr3t", cfg.Database.ToPostgres().Password)
	})

	t.Run("Should keep an empty password empty", func(t *testing.T) {
		var empty SensitiveString
		assert.Empty(t, empty.String())
		data, err := json.Marshal(empty)
		require.NoError(t, err)
		assert.JSONEq(t, `""`, string(data))
	})

	t.Run("Should decode a password from JSON", func(t *testing.T) {
		var db struct {
			Password SensitiveString `json:"password"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"password":"from-file"}`), &db))
		assert.Equal(t, "from-file", db.Password.Value())
	})
}
