package postgres

import "time"

const (
	defaultMaxConns        = 25
	defaultMinConns        = 5
	defaultMaxConnLifetime = 5 * time.Minute
	defaultApplicationName = "odin"
)

// Config configures the connection pool of a Store.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// ApplicationName is reported to the server in pg_stat_activity.
	ApplicationName string

	// MigrateOnStart applies pending migrations from the embedded
	// migrations directory before New returns.
	MigrateOnStart bool
}

// withDefaults returns c with zero fields replaced by their defaults.
func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.MinConns <= 0 {
		c.MinConns = defaultMinConns
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = defaultMaxConnLifetime
	}
	if c.ApplicationName == "" {
		c.ApplicationName = defaultApplicationName
	}
	return c
}
