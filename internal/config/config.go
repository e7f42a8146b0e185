// Package config loads and validates the registry configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the NPMR_ prefix (e.g., NPMR_DATABASE_HOST
// overrides database.host in the YAML).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Name               string        `mapstructure:"name"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxConnections     int           `mapstructure:"max_connections"`
	MinIdleConnections int           `mapstructure:"min_idle_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	// QueryTimeout bounds every store call made while serving a request.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// AutoMigrate applies embedded migrations when the server starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// AuthConfig holds bearer-token configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	// DevMode allows an empty JWT secret; a random one is generated per process.
	DevMode bool `mapstructure:"dev_mode"`
}

// RegistryConfig tunes the metadata core
type RegistryConfig struct {
	// SearchDefaultLimit is used when a search request carries no size.
	SearchDefaultLimit int `mapstructure:"search_default_limit"`
	// SearchFallbackThreshold is the prefix-hit count below which search widens to
	// substring matching.
	SearchFallbackThreshold int `mapstructure:"search_fallback_threshold"`
	// AsyncKeywordIndexing moves keyword indexing off the publish path.
	AsyncKeywordIndexing bool `mapstructure:"async_keyword_indexing"`
}

// SecurityConfig holds HTTP security settings
type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds metrics configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PrometheusPort  int           `mapstructure:"prometheus_port"`
	DBStatsInterval time.Duration `mapstructure:"db_stats_interval"`
}

// bindEnvVars binds every known key to its NPMR_ variable. AutomaticEnv alone is not
// consulted by Unmarshal for nested keys, so each key needs an explicit binding; every
// key has a default, which makes AllKeys the complete list.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/npm-registry")
	}

	// Only the search-path lookup may come up empty; an explicit path must exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("NPMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may reference the environment as ${VAR}.
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Auth.JWTSecret = os.ExpandEnv(cfg.Auth.JWTSecret)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7001)
	v.SetDefault("server.base_url", "http://localhost:7001")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "npm_registry")
	v.SetDefault("database.user", "registry")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "10s")
	v.SetDefault("database.auto_migrate", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.dev_mode", false)

	// Registry defaults
	v.SetDefault("registry.search_default_limit", 100)
	v.SetDefault("registry.search_fallback_threshold", 20)
	v.SetDefault("registry.async_keyword_indexing", false)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "PUT", "DELETE", "OPTIONS"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "npm-registry")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.metrics.db_stats_interval", "15s")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.QueryTimeout < 0 {
		return fmt.Errorf("database.query_timeout must not be negative")
	}

	if c.Auth.JWTSecret == "" && !c.Auth.DevMode {
		return fmt.Errorf("auth.jwt_secret is required unless auth.dev_mode is enabled")
	}

	if c.Registry.SearchDefaultLimit < 1 {
		return fmt.Errorf("registry.search_default_limit must be positive, got %d", c.Registry.SearchDefaultLimit)
	}
	if c.Registry.SearchFallbackThreshold < 0 {
		return fmt.Errorf("registry.search_fallback_threshold must not be negative, got %d", c.Registry.SearchFallbackThreshold)
	}

	if c.Telemetry.Metrics.Enabled {
		if p := c.Telemetry.Metrics.PrometheusPort; p < 1 || p > 65535 {
			return fmt.Errorf("invalid metrics port: %d", p)
		}
		if p := c.Telemetry.Metrics.PrometheusPort; p == c.Server.Port {
			return fmt.Errorf("telemetry.metrics.prometheus_port must differ from server.port (%d)", p)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
