// Package config provides unified configuration for the odin service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (ODIN_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the odin service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
	MaxBodySize     int64         `yaml:"max_body_size"`    // bytes, default: 10 MiB
}

// MetadataConfig locates the schema and the service it is published under.
type MetadataConfig struct {
	// SchemaFile is the YAML schema document. Required.
	SchemaFile string `yaml:"schema_file"`

	// ServiceRoot is the URL path prefix of the service (default: "/odata/").
	ServiceRoot string `yaml:"service_root"`

	// MaxPageSize caps the entities of one collection response; longer
	// collections are paged with @odata.nextLink. Zero disables paging.
	MaxPageSize int `yaml:"max_page_size"`
}

// StorageConfig selects the record store of the reference handler.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`          // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"`         // default: 25
	MinConns        int32         `yaml:"min_conns"`         // default: 5
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"` // default: 5m
	MigrateOnStart  bool          `yaml:"migrate_on_start"`  // default: false
}

// AuthConfig holds authentication and rate limiting settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string   `yaml:"key" json:"key"`
	KeyFile  string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject  string   `yaml:"subject" json:"subject"`
	TenantID string   `yaml:"tenant_id" json:"tenant_id"`
	Tier     string   `yaml:"tier" json:"tier"`
	Scopes   []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	JWKSURL    string        `yaml:"jwks_url"`
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	CacheTTL   time.Duration `yaml:"cache_ttl"`   // default: 1h

	SubjectClaim string `yaml:"subject_claim"`
	TenantClaim  string `yaml:"tenant_claim"`
	TierClaim    string `yaml:"tier_claim"`
	ScopesClaim  string `yaml:"scopes_claim"`
}

// RateLimitConfig configures per-subject token buckets.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Default applies to tiers without an entry in Tiers.
	Default TierLimit            `yaml:"default"`
	Tiers   map[string]TierLimit `yaml:"tiers"`
}

// TierLimit is the token bucket of one tier.
type TierLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig controls slog output and debug categories. ODIN_DEBUG and
// ODIN_LOG_LEVEL take precedence at runtime.
type LoggingConfig struct {
	Debug  string `yaml:"debug"`  // comma separated categories, "all" for every one
	Level  string `yaml:"level"`  // trace, debug, info, warn, error; default: info
	Format string `yaml:"format"` // text or json; default: text
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodySize:     10 << 20,
		},
		Metadata: MetadataConfig{
			ServiceRoot: "/odata/",
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:        25,
				MinConns:        5,
				MaxConnLifetime: 5 * time.Minute,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			JWT: JWTConfig{
				CacheTTL: time.Hour,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
