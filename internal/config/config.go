// Package config loads sheetpipe settings from environment variables.
// Defaults cover a local workbook run; Validate reports every bad setting at
// once so startup fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverXLSX     = "xlsx"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests. Pipeline runs
	// use PIPELINE_TIMEOUT instead. (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxImportSize caps CSV uploads in bytes (default: 100MB)
	MaxImportSize int64 `env:"SERVER_MAX_IMPORT_SIZE" default:"104857600"`
}

// StoreConfig selects the table store backend.
type StoreConfig struct {
	// Driver is one of xlsx, postgres, memory (default: xlsx)
	Driver string `env:"STORE_DRIVER" default:"xlsx"`

	// Path is the workbook file for the xlsx driver (default: workbook.xlsx)
	Path string `env:"STORE_PATH" default:"workbook.xlsx"`

	// CreateMissing starts an empty workbook when Path does not exist and
	// creates the pipeline's tables when they are absent (default: true)
	CreateMissing bool `env:"STORE_CREATE_MISSING" default:"true"`
}

// DatabaseConfig holds PostgreSQL settings, used by the postgres driver.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// PipelineConfig holds stage defaults and run limits.
type PipelineConfig struct {
	SourceTable string `env:"PIPELINE_SOURCE_TABLE" default:"S1"`
	DestTable   string `env:"PIPELINE_DEST_TABLE" default:"S2"`
	HeaderTable string `env:"PIPELINE_HEADER_TABLE" default:"S1"`

	// MarkerColumn is the 1-based column filled with markers and resolved
	// into subtotals (default: 8)
	MarkerColumn int `env:"PIPELINE_MARKER_COLUMN" default:"8"`

	ReadBatchSize    int `env:"PIPELINE_READ_BATCH_SIZE" default:"1000"`
	WriteBatchSize   int `env:"PIPELINE_WRITE_BATCH_SIZE" default:"1000"`
	ReplaceBatchSize int `env:"PIPELINE_REPLACE_BATCH_SIZE" default:"100"`

	// MaxConcurrent is the number of stage runs allowed at once (default: 1)
	MaxConcurrent int `env:"PIPELINE_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"PIPELINE_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds one full pipeline run (default: 10m)
	Timeout time.Duration `env:"PIPELINE_TIMEOUT" default:"10m"`

	// HistorySize is the number of run records kept in memory (default: 100)
	HistorySize int `env:"PIPELINE_HISTORY_SIZE" default:"100"`

	// HistoryRetention drops finished run records older than this; 0 keeps
	// them until HistorySize pushes them out (default: 0)
	HistoryRetention time.Duration `env:"PIPELINE_HISTORY_RETENTION" default:"0s"`

	// PruneInterval is how often the server prunes run history (default: 1h)
	PruneInterval time.Duration `env:"PIPELINE_PRUNE_INTERVAL" default:"1h"`
}

// SecurityConfig holds settings for the HTTP surface.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey guards the mutating API routes with X-API-Key
	// (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RateLimitRPS is requests per second allowed per client; 0 disables
	// rate limiting (default: 20)
	RateLimitRPS int `env:"RATE_LIMIT_RPS" default:"20"`

	// RateLimitBurst is the per-client burst size (default: 40)
	RateLimitBurst int `env:"RATE_LIMIT_BURST" default:"40"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
