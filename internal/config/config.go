// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverMariaDB = "mariadb"
	DriverMemory  = "memory"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL, used as the allowed CORS origin.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	// Empty means the environment default.
	LogLevel string

	// TrustedProxies are the CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are believed when resolving the client IP.
	TrustedProxies []string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Storage selects the persistence backend.
	Storage StorageConfig

	// Gallery holds result-size limits for the album query endpoints.
	Gallery GalleryConfig

	// RateLimit holds per-IP request rate settings for the API.
	RateLimit RateLimitConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set it is parsed and used as the base. Otherwise the DSN is built from the
// individual Host/User/Password/Name fields using the driver's
// Config.FormatDSN() to safely handle special characters in passwords.
//
// Either way timestamps are scanned into time.Time and read as UTC; the
// repositories and the year filter depend on it. An unparsable
// DATABASE_URL is rejected by Load, so DSN returns it unchanged.
func (d DatabaseConfig) DSN() string {
	cfg, err := d.mysqlConfig()
	if err != nil {
		return d.dsnOverride
	}
	return cfg.FormatDSN()
}

// mysqlConfig returns the driver config with the time handling forced on.
func (d DatabaseConfig) mysqlConfig() (*mysql.Config, error) {
	var cfg *mysql.Config
	if d.dsnOverride != "" {
		parsed, err := mysql.ParseDSN(d.dsnOverride)
		if err != nil {
			return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = ensurePort(d.Host, "3306")
		cfg.DBName = d.Name
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	cfg.Params["time_zone"] = "'+00:00'"
	return cfg, nil
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	// Empty disables the filter-option cache.
	URL string
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is "mariadb" (default) or "memory".
	Driver string

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string

	// AutoMigrate applies pending migrations on startup when true.
	AutoMigrate bool
}

// GalleryConfig bounds the size of album query responses.
type GalleryConfig struct {
	// MaxResults caps the unpaginated gallery view.
	MaxResults int

	// DefaultPageSize is used when the caller sends no perPage.
	DefaultPageSize int

	// MaxPageSize is the largest perPage a caller may request.
	MaxPageSize int

	// FilterOptionsTTL is how long cached filter menus stay valid.
	FilterOptionsTTL time.Duration
}

// RateLimitConfig holds token bucket parameters per client IP.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if values are inconsistent.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		TrustedProxies: getEnvList("TRUSTED_PROXIES",
			[]string{"127.0.0.1/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "gallery"),
			Password:        getEnv("DB_PASSWORD", "gallery"),
			Name:            getEnv("DB_NAME", "gallery"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},

		Storage: StorageConfig{
			Driver:         strings.ToLower(getEnv("STORAGE_DRIVER", DriverMariaDB)),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
			AutoMigrate:    getEnvBool("AUTO_MIGRATE", true),
		},

		Gallery: GalleryConfig{
			MaxResults:       getEnvInt("GALLERY_MAX_RESULTS", 1000),
			DefaultPageSize:  getEnvInt("DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:      getEnvInt("MAX_PAGE_SIZE", 100),
			FilterOptionsTTL: getEnvDuration("FILTER_OPTIONS_TTL", 60*time.Second),
		},

		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst: getEnvInt("RATE_LIMIT_BURST", 40),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the server cannot run with.
func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMariaDB:
		if _, err := c.Database.mysqlConfig(); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMariaDB, DriverMemory, c.Storage.Driver)
	}
	if c.Gallery.MaxResults < 1 {
		return fmt.Errorf("GALLERY_MAX_RESULTS must be positive")
	}
	if c.Gallery.DefaultPageSize < 1 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive")
	}
	if c.Gallery.MaxPageSize < c.Gallery.DefaultPageSize {
		return fmt.Errorf("MAX_PAGE_SIZE (%d) must be >= DEFAULT_PAGE_SIZE (%d)",
			c.Gallery.MaxPageSize, c.Gallery.DefaultPageSize)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvFloat reads a float env var or returns the default.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default. Blank
// entries are dropped.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "90s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
