package postgres

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// Config holds PostgreSQL connection settings for the driver.
// Prefer providing a DSN via ConnString. When empty, a DSN will be
// synthesized from the individual fields.
type Config struct {
	ConnString string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string

	// MaxOpenConns bounds the pool. Setup needs at least two connections: one
	// holds the migration lock while the other applies migrations.
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	PingTimeout        time.Duration
	ProbeTimeout       time.Duration
	HealthCheckTimeout time.Duration
	// MigrationLockTimeout caps how long Setup waits for another instance
	// to finish migrating.
	MigrationLockTimeout time.Duration
}

func (c *Config) validate() error {
	if c.MaxOpenConns != 0 && c.MaxOpenConns < 2 {
		return fmt.Errorf("max open connections must be at least 2, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative")
	}
	if c.ConnString == "" && c.Host == "" {
		return fmt.Errorf("either a connection string or a host is required")
	}
	return nil
}

// dsn returns the connection string, building a URL from discrete fields
// when ConnString is empty.
func dsn(cfg *Config) string {
	if cfg.ConnString != "" {
		return cfg.ConnString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(valueOrDefault(cfg.Host, "localhost"), valueOrDefault(cfg.Port, "5432")),
		Path:   "/" + valueOrDefault(cfg.DBName, "postgres"),
	}
	user := valueOrDefault(cfg.User, "postgres")
	if cfg.Password != "" {
		u.User = url.UserPassword(user, cfg.Password)
	} else {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", valueOrDefault(cfg.SSLMode, "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
