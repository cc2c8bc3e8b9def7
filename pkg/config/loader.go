package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/odin/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, ODIN_CONFIG env, ./config.yaml, /etc/odin/config.yaml)
//  3. ODIN_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log(debug.Config, "config file loaded", "path", filePath)
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. ODIN_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/odin/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("ODIN_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/odin/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps ODIN_* environment variables to config fields.
// Malformed numeric values are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				slog.Warn("ignoring malformed environment variable", "name", name, "value", v)
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				slog.Warn("ignoring malformed environment variable", "name", name, "value", v)
				return
			}
			*dst = d
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				slog.Warn("ignoring malformed environment variable", "name", name, "value", v)
				return
			}
			*dst = b
		}
	}

	setInt("ODIN_PORT", &cfg.Server.Port)
	setDuration("ODIN_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("ODIN_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	if v := os.Getenv("ODIN_MAX_BODY_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodySize = n
		} else {
			slog.Warn("ignoring malformed environment variable", "name", "ODIN_MAX_BODY_SIZE", "value", v)
		}
	}

	setString("ODIN_SCHEMA_FILE", &cfg.Metadata.SchemaFile)
	setString("ODIN_SERVICE_ROOT", &cfg.Metadata.ServiceRoot)
	setInt("ODIN_MAX_PAGE_SIZE", &cfg.Metadata.MaxPageSize)

	setString("ODIN_STORAGE", &cfg.Storage.Type)
	setString("ODIN_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setBool("ODIN_POSTGRES_MIGRATE", &cfg.Storage.Postgres.MigrateOnStart)

	setString("ODIN_AUTH_TYPE", &cfg.Auth.Type)
	setString("ODIN_JWT_ISSUER", &cfg.Auth.JWT.Issuer)
	setString("ODIN_JWT_AUDIENCE", &cfg.Auth.JWT.Audience)
	setString("ODIN_JWT_JWKS_URL", &cfg.Auth.JWT.JWKSURL)
	setString("ODIN_JWT_SECRET", &cfg.Auth.JWT.Secret)

	// ODIN_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("ODIN_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			slog.Warn("ignoring malformed ODIN_API_KEYS", "error", err)
		} else if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	setBool("ODIN_METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)
	setString("ODIN_METRICS_PATH", &cfg.Observability.Metrics.Path)

	setString("ODIN_LOG_FORMAT", &cfg.Logging.Format)
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// auth.jwt.secret_file -> auth.jwt.secret
	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
