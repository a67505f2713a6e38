// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/csv"
)

// Config holds all service configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Grammar  GrammarConfig
	Table    TableConfig
	Schema   SchemaConfig
	Upload   UploadConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// GrammarConfig is the service-wide line grammar. Each token is a single
// character. Schemas may carry their own grammar, which takes precedence.
type GrammarConfig struct {
	Delimiter string `env:"CSV_DELIMITER" default:","`

	// DelimiterPattern is a regular expression matched instead of Delimiter
	// when reading, e.g. `\s*,\s*` (default: the quoted delimiter)
	DelimiterPattern string `env:"CSV_DELIMITER_PATTERN"`

	// CellPattern is the regular expression a bare cell must match, e.g.
	// `[^,"]*` (default: anything but the delimiter and quote)
	CellPattern string `env:"CSV_CELL_PATTERN"`

	Quote         string `env:"CSV_QUOTE" default:"\""`
	ListOpen      string `env:"CSV_LIST_OPEN" default:"{"`
	ListClose     string `env:"CSV_LIST_CLOSE" default:"}"`
	ListSeparator string `env:"CSV_LIST_SEPARATOR" default:","`

	// Multiline lets quoted cells span lines (default: false)
	Multiline bool `env:"CSV_MULTILINE" default:"false"`
}

// TableConfig holds the default build options.
type TableConfig struct {
	// Forgiving collects failing rows instead of aborting (default: true)
	Forgiving bool `env:"TABLE_FORGIVING" default:"true"`

	// MaxFailures stops a forgiving build early; 0 is unlimited (default: 1000)
	MaxFailures int `env:"TABLE_MAX_FAILURES" default:"1000"`

	// HeaderRows is the number of leading header lines (default: 1)
	HeaderRows int `env:"TABLE_HEADER_ROWS" default:"1"`

	// HeaderSeparator joins the rows of a multi-row header (default: space)
	HeaderSeparator string `env:"TABLE_HEADER_SEPARATOR" default:" "`

	// Workers is the number of row converters per build (default: 4)
	Workers int `env:"TABLE_WORKERS" default:"4"`

	// BatchSize is the number of rows handed to the workers at once (default: 256)
	BatchSize int `env:"TABLE_BATCH_SIZE" default:"256"`
}

// SchemaConfig controls where schema documents are loaded from.
type SchemaConfig struct {
	// Dir is a directory of YAML schema documents loaded at startup (optional)
	Dir string `env:"SCHEMA_DIR"`

	// Builtin registers the schemas shipped with the binary (default: true)
	Builtin bool `env:"SCHEMA_BUILTIN" default:"true"`
}

// UploadConfig holds request body processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed body size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel builds (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a build slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single build (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// DatabaseConfig holds database connection settings. Loading into
// PostgreSQL is disabled when URL is empty.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// CreateTables issues CREATE TABLE IF NOT EXISTS before loading (default: true)
	CreateTables bool `env:"DB_CREATE_TABLES" default:"true"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds result cache settings. Caching is disabled when Addr
// is empty.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" default:"0"`

	// TTL is how long a cached response is kept (default: 1h)
	TTL time.Duration `env:"REDIS_CACHE_TTL" default:"1h"`

	// Prefix namespaces cache keys (default: csvtable:result:)
	Prefix string `env:"REDIS_CACHE_PREFIX" default:"csvtable:result:"`
}

// Enabled reports whether a cache is configured.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for build endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api routes with an X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// CSV compiles the grammar.
func (c *GrammarConfig) CSV() (*csv.Grammar, error) {
	cfg := csv.DefaultConfig()
	tokens := []struct {
		env string
		src string
		dst *byte
	}{
		{"CSV_DELIMITER", c.Delimiter, &cfg.Delimiter},
		{"CSV_QUOTE", c.Quote, &cfg.Quote},
		{"CSV_LIST_OPEN", c.ListOpen, &cfg.ListOpen},
		{"CSV_LIST_CLOSE", c.ListClose, &cfg.ListClose},
		{"CSV_LIST_SEPARATOR", c.ListSeparator, &cfg.ListSeparator},
	}
	for _, tok := range tokens {
		if tok.src == "" {
			continue
		}
		b, err := singleByte(tok.src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tok.env, err)
		}
		*tok.dst = b
	}
	cfg.DelimiterPattern = c.DelimiterPattern
	cfg.CellPattern = c.CellPattern
	cfg.Multiline = c.Multiline
	return csv.New(cfg)
}

// "\t" is accepted for a tab since a literal tab is awkward in .env files.
func singleByte(s string) (byte, error) {
	if s == `\t` {
		return '\t', nil
	}
	if len(s) != 1 {
		return 0, fmt.Errorf("must be a single character, got %q", s)
	}
	return s[0], nil
}

// Options returns the build options, without a logger.
func (c *TableConfig) Options() core.Options {
	return core.Options{
		HeaderRows:      c.HeaderRows,
		HeaderSeparator: c.HeaderSeparator,
		Forgiving:       c.Forgiving,
		MaxFailures:     c.MaxFailures,
		Workers:         c.Workers,
		BatchSize:       c.BatchSize,
	}
}
