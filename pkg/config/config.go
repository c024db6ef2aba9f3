package config

import (
	"context"
	"encoding/json"
	"time"

	"github.com/compozy/modelstore/engine/infra/postgres"
)

// Config is the process configuration of modelstore tools.
type Config struct {
	Database DatabaseConfig `koanf:"database" validate:"required"`
	Runtime  RuntimeConfig  `koanf:"runtime"  validate:"required"`
}

// DatabaseConfig contains PostgreSQL connection and pool settings.
type DatabaseConfig struct {
	ConnString string          `koanf:"conn_string" env:"DB_CONN_STRING"`
	Host       string          `koanf:"host"        env:"DB_HOST"`
	Port       string          `koanf:"port"        env:"DB_PORT"`
	User       string          `koanf:"user"        env:"DB_USER"`
	Password   SensitiveString `koanf:"password"    env:"DB_PASSWORD"    sensitive:"true"`
	DBName     string          `koanf:"name"        env:"DB_NAME"`
	SSLMode    string          `koanf:"ssl_mode"    env:"DB_SSL_MODE"    validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	MaxOpenConns         int           `koanf:"max_open_conns"         env:"DB_MAX_OPEN_CONNS"         validate:"min=0"`
	MaxIdleConns         int           `koanf:"max_idle_conns"         env:"DB_MAX_IDLE_CONNS"         validate:"min=0"`
	ConnMaxLifetime      time.Duration `koanf:"conn_max_lifetime"      env:"DB_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime      time.Duration `koanf:"conn_max_idle_time"     env:"DB_CONN_MAX_IDLE_TIME"`
	HealthCheckPeriod    time.Duration `koanf:"health_check_period"    env:"DB_HEALTH_CHECK_PERIOD"`
	ConnectTimeout       time.Duration `koanf:"connect_timeout"        env:"DB_CONNECT_TIMEOUT"`
	PingTimeout          time.Duration `koanf:"ping_timeout"           env:"DB_PING_TIMEOUT"`
	ProbeTimeout         time.Duration `koanf:"probe_timeout"          env:"DB_PROBE_TIMEOUT"`
	MigrationLockTimeout time.Duration `koanf:"migration_lock_timeout" env:"DB_MIGRATION_LOCK_TIMEOUT"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string        `koanf:"environment"  validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string        `koanf:"log_level"    validate:"oneof=debug info warn error disabled" env:"RUNTIME_LOG_LEVEL"`
	LogJSON     bool          `koanf:"log_json"                                                     env:"RUNTIME_LOG_JSON"`
	// Metrics prints pool and system metrics when a command finishes.
	Metrics bool `koanf:"metrics" env:"RUNTIME_METRICS"`
	// MigrateWait bounds how long `migrate --wait` retries an unreachable
	// database before giving up.
	MigrateWait time.Duration `koanf:"migrate_wait" validate:"min=0"                                env:"RUNTIME_MIGRATE_WAIT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:                 "localhost",
			Port:                 "5432",
			User:                 "postgres",
			Password:             "",
			DBName:               "modelstore",
			SSLMode:              "disable",
			MaxOpenConns:         20,
			MaxIdleConns:         2,
			ConnMaxLifetime:      30 * time.Minute,
			ConnMaxIdleTime:      5 * time.Minute,
			HealthCheckPeriod:    30 * time.Second,
			ConnectTimeout:       5 * time.Second,
			PingTimeout:          3 * time.Second,
			ProbeTimeout:         time.Second,
			MigrationLockTimeout: 2 * time.Minute,
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
			MigrateWait: 30 * time.Second,
		},
	}
}

// ToPostgres converts the database section into driver settings.
func (d DatabaseConfig) ToPostgres() *postgres.Config {
	return &postgres.Config{
		ConnString:           d.ConnString,
		Host:                 d.Host,
		Port:                 d.Port,
		User:                 d.User,
		Password:             d.Password.Value(),
		DBName:               d.DBName,
		SSLMode:              d.SSLMode,
		MaxOpenConns:         d.MaxOpenConns,
		MaxIdleConns:         d.MaxIdleConns,
		ConnMaxLifetime:      d.ConnMaxLifetime,
		ConnMaxIdleTime:      d.ConnMaxIdleTime,
		HealthCheckPeriod:    d.HealthCheckPeriod,
		ConnectTimeout:       d.ConnectTimeout,
		PingTimeout:          d.PingTimeout,
		ProbeTimeout:         d.ProbeTimeout,
		MigrationLockTimeout: d.MigrationLockTimeout,
	}
}

// Service defines the configuration loading interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a configuration key.
	GetSource(key string) SourceType
}

// Source represents a configuration source.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType
	LoadedAt time.Time
}

// SensitiveString holds a secret that never prints or marshals in clear.
type SensitiveString string

const redacted = "[REDACTED]"

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the secret itself.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = SensitiveString(v)
	return nil
}
