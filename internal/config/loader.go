package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Store validation
	switch strings.ToLower(c.Store.Driver) {
	case DriverXLSX:
		if c.Store.Path == "" {
			errs = append(errs, "STORE_PATH is required for the xlsx driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: xlsx, postgres, memory", c.Store.Driver))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxImportSize <= 0 {
		errs = append(errs, "SERVER_MAX_IMPORT_SIZE must be positive")
	}

	// Pipeline validation
	if c.Pipeline.SourceTable == "" || c.Pipeline.DestTable == "" || c.Pipeline.HeaderTable == "" {
		errs = append(errs, "PIPELINE_SOURCE_TABLE, PIPELINE_DEST_TABLE and PIPELINE_HEADER_TABLE must not be empty")
	}
	if c.Pipeline.MarkerColumn < 1 {
		errs = append(errs, fmt.Sprintf("PIPELINE_MARKER_COLUMN (%d) must be >= 1", c.Pipeline.MarkerColumn))
	}
	if c.Pipeline.ReadBatchSize <= 0 {
		errs = append(errs, "PIPELINE_READ_BATCH_SIZE must be positive")
	}
	if c.Pipeline.WriteBatchSize <= 0 {
		errs = append(errs, "PIPELINE_WRITE_BATCH_SIZE must be positive")
	}
	if c.Pipeline.ReplaceBatchSize <= 0 {
		errs = append(errs, "PIPELINE_REPLACE_BATCH_SIZE must be positive")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		errs = append(errs, "PIPELINE_MAX_CONCURRENT must be positive")
	}
	if c.Pipeline.MaxWaitTime <= 0 {
		errs = append(errs, "PIPELINE_MAX_WAIT_TIME must be positive")
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, "PIPELINE_TIMEOUT must be positive")
	}
	if c.Pipeline.HistorySize <= 0 {
		errs = append(errs, "PIPELINE_HISTORY_SIZE must be positive")
	}
	if c.Pipeline.HistoryRetention < 0 {
		errs = append(errs, "PIPELINE_HISTORY_RETENTION must be non-negative")
	}
	if c.Pipeline.HistoryRetention > 0 && c.Pipeline.PruneInterval <= 0 {
		errs = append(errs, "PIPELINE_PRUNE_INTERVAL must be positive when PIPELINE_HISTORY_RETENTION is set")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "API_KEYS must be set when REQUIRE_API_KEY is true")
	}
	if c.Security.RateLimitRPS < 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be non-negative")
	}
	if c.Security.RateLimitRPS > 0 && c.Security.RateLimitBurst < 1 {
		errs = append(errs, "RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Driver: %q, Path: %q}, ", c.Store.Driver, c.Store.Path)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Pipeline: {Source: %q, Dest: %q, MarkerColumn: %d, ReadBatch: %d, WriteBatch: %d, ReplaceBatch: %d}, ",
		c.Pipeline.SourceTable, c.Pipeline.DestTable, c.Pipeline.MarkerColumn,
		c.Pipeline.ReadBatchSize, c.Pipeline.WriteBatchSize, c.Pipeline.ReplaceBatchSize)
	fmt.Fprintf(&b, "Security: {TrustedProxies: %v, RequireAPIKey: %t, APIKeys: [%d MASKED]}, ",
		c.Security.TrustedProxies, c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
