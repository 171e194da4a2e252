// Package config provides centralized configuration management for the oil price trend service.
// This module handles configuration loading from multiple sources (JSON or YAML files, .env files,
// environment variables), validation, and provides typed configuration structures for each component.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" yaml:"app_name" env:"APP_NAME"`
	Version    string `json:"version" yaml:"version" env:"VERSION"`
	ConfigPath string `json:"-" yaml:"-" env:"CONFIG_PATH"`

	// Upstream price provider configuration
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`

	// Read-through cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// HTTP server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// UpstreamConfig configures the upstream price provider client
type UpstreamConfig struct {
	ClientName  string            `json:"client_name" yaml:"client_name" env:"OILPRICE_CLIENT_NAME"`   // Named HTTP client, sent as User-Agent
	URL         string            `json:"url" yaml:"url" env:"OILPRICE_URL"`                           // Base URL of the price feed
	Timeout     string            `json:"timeout" yaml:"timeout" env:"OILPRICE_HTTP_TIMEOUT"`          // HTTP request timeout
	RateLimit   int               `json:"rate_limit" yaml:"rate_limit" env:"OILPRICE_RATE_LIMIT"`      // Requests per minute, 0 disables limiting
	RetryPolicy RetryPolicyConfig `json:"retry_policy" yaml:"retry_policy"`                           // Transport retry configuration
}

// CacheConfig configures the read-through cache
type CacheConfig struct {
	DurationMS   int64  `json:"duration_ms" yaml:"duration_ms" env:"OILPRICE_CACHE_DURATION_MS"`       // Entry lifetime in milliseconds, <= 0 disables caching
	Preload      bool   `json:"preload" yaml:"preload" env:"OILPRICE_CACHE_PRELOAD"`                   // Populate before serving traffic
	FetchTimeout string `json:"fetch_timeout" yaml:"fetch_timeout" env:"OILPRICE_CACHE_FETCH_TIMEOUT"` // Upper bound on one population
}

// ServerConfig configures the JSON-RPC HTTP server
type ServerConfig struct {
	Host            string `json:"host" yaml:"host" env:"OILPRICE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"OILPRICE_PORT"`
	ReadTimeout     string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" yaml:"level" env:"LOG_LEVEL"`                   // Log level: debug, info, warn, error
	Format        string            `json:"format" yaml:"format" env:"LOG_FORMAT"`                // Log format: json, text
	Output        string            `json:"output" yaml:"output" env:"LOG_OUTPUT"`                // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" yaml:"file_path" env:"LOG_FILE_PATH"`       // Log file path
	MaxSize       int               `json:"max_size" yaml:"max_size" env:"LOG_MAX_SIZE"`          // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" yaml:"max_backups" env:"LOG_MAX_BACKUPS"` // Maximum log file backups
	MaxAge        int               `json:"max_age" yaml:"max_age" env:"LOG_MAX_AGE"`             // Maximum log file age in days
	Compress      bool              `json:"compress" yaml:"compress" env:"LOG_COMPRESS"`          // Compress old log files
	ContextFields map[string]string `json:"context_fields" yaml:"context_fields"`                 // Additional context fields
}

// MetricsConfig configures metrics exposition
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"METRICS_ENABLED"` // Expose Prometheus metrics
	Path    string `json:"path" yaml:"path" env:"METRICS_PATH"`          // Metrics endpoint path
}

// RetryPolicyConfig configures retry behavior
type RetryPolicyConfig struct {
	MaxAttempts     int    `json:"max_attempts" yaml:"max_attempts"`         // Total attempts, 1 disables retry
	InitialDelay    string `json:"initial_delay" yaml:"initial_delay"`       // Initial delay between retries
	MaxDelay        string `json:"max_delay" yaml:"max_delay"`               // Maximum delay between retries
	BackoffStrategy string `json:"backoff_strategy" yaml:"backoff_strategy"` // Backoff strategy: fixed, exponential, linear
	Jitter          bool   `json:"jitter" yaml:"jitter"`                     // Add randomness to delays
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	envFiles   []string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager.
// envFiles are dotenv files loaded before the environment is read; missing files are skipped.
func NewConfigManager(configPath string, logger *slog.Logger, envFiles ...string) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		envFiles:   envFiles,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables, including values from .env files (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	// Load from configuration file if it exists
	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		config.ConfigPath = cm.configPath
	}

	if err := cm.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Override with environment variables
	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Info("configuration loaded successfully",
		"config_path", cm.configPath,
		"client_name", config.Upstream.ClientName,
		"cache_enabled", config.Cache.Enabled(),
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadDotEnv populates the process environment from dotenv files.
// Variables already set in the environment win.
func (cm *ConfigManager) loadDotEnv() error {
	for _, path := range cm.envFiles {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		cm.logger.Debug("loaded environment file", "path", path)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	// Load main application config
	if val := os.Getenv("APP_NAME"); val != "" {
		config.AppName = val
	}
	if val := os.Getenv("VERSION"); val != "" {
		config.Version = val
	}

	// Load upstream config
	if val := os.Getenv("OILPRICE_CLIENT_NAME"); val != "" {
		config.Upstream.ClientName = val
	}
	if val := os.Getenv("OILPRICE_URL"); val != "" {
		config.Upstream.URL = val
	}
	if val := os.Getenv("OILPRICE_HTTP_TIMEOUT"); val != "" {
		config.Upstream.Timeout = val
	}
	if val := os.Getenv("OILPRICE_RATE_LIMIT"); val != "" {
		rateLimit, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("OILPRICE_RATE_LIMIT: %w", err)
		}
		config.Upstream.RateLimit = rateLimit
	}
	if val := os.Getenv("OILPRICE_RETRY_ATTEMPTS"); val != "" {
		attempts, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("OILPRICE_RETRY_ATTEMPTS: %w", err)
		}
		config.Upstream.RetryPolicy.MaxAttempts = attempts
	}

	// Load cache config
	if val := os.Getenv("OILPRICE_CACHE_DURATION_MS"); val != "" {
		duration, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("OILPRICE_CACHE_DURATION_MS: %w", err)
		}
		config.Cache.DurationMS = duration
	}
	if val := os.Getenv("OILPRICE_CACHE_PRELOAD"); val != "" {
		config.Cache.Preload = val == "true"
	}
	if val := os.Getenv("OILPRICE_CACHE_FETCH_TIMEOUT"); val != "" {
		config.Cache.FetchTimeout = val
	}

	// Load server config
	if val := os.Getenv("OILPRICE_HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("OILPRICE_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("OILPRICE_PORT: %w", err)
		}
		config.Server.Port = port
	}

	// Load logging config
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}

	// Load metrics config
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		config.Metrics.Enabled = val == "true"
	}
	if val := os.Getenv("METRICS_PATH"); val != "" {
		config.Metrics.Path = val
	}

	cm.logger.Debug("loaded configuration from environment variables")
	return nil
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errors []string

	// Validate upstream configuration
	if strings.TrimSpace(config.Upstream.ClientName) == "" {
		errors = append(errors, "upstream.client_name is required")
	}
	if strings.TrimSpace(config.Upstream.URL) == "" {
		errors = append(errors, "upstream.url is required")
	} else if u, err := url.Parse(config.Upstream.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, "upstream.url must be an absolute http or https URL")
	}
	if _, err := time.ParseDuration(config.Upstream.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("upstream.timeout is not a valid duration: %v", err))
	}
	if config.Upstream.RateLimit < 0 {
		errors = append(errors, "upstream.rate_limit must not be negative")
	}
	if config.Upstream.RetryPolicy.MaxAttempts < 1 {
		errors = append(errors, "upstream.retry_policy.max_attempts must be at least 1")
	}

	// Validate cache configuration
	if config.Cache.Enabled() {
		if _, err := time.ParseDuration(config.Cache.FetchTimeout); err != nil {
			errors = append(errors, fmt.Sprintf("cache.fetch_timeout is not a valid duration: %v", err))
		}
	}

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}

	// Validate metrics configuration
	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		errors = append(errors, "metrics.path must start with /")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults.
// The upstream client name and URL have no defaults and must be supplied.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "oilprice-trend",
		Version: "1.0.0",
		Upstream: UpstreamConfig{
			Timeout:   "30s",
			RateLimit: 60,
			RetryPolicy: RetryPolicyConfig{
				MaxAttempts:     1,
				InitialDelay:    "500ms",
				MaxDelay:        "5s",
				BackoffStrategy: "exponential",
				Jitter:          true,
			},
		},
		Cache: CacheConfig{
			DurationMS:   3600000, // 1 hour
			Preload:      true,
			FetchTimeout: "30s",
		},
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     "10s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "15s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "oilprice-trend",
				"version": "1.0.0",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Enabled reports whether responses should be cached at all
func (c CacheConfig) Enabled() bool {
	return c.DurationMS > 0
}

// TTL returns the cache entry lifetime
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.DurationMS) * time.Millisecond
}

// FetchTimeoutDuration returns the population timeout, falling back to 30s
func (c CacheConfig) FetchTimeoutDuration() time.Duration {
	return parseDurationOr(c.FetchTimeout, 30*time.Second)
}

// RequestTimeout returns the upstream HTTP timeout, falling back to 30s
func (u UpstreamConfig) RequestTimeout() time.Duration {
	return parseDurationOr(u.Timeout, 30*time.Second)
}

// Addr returns the listen address of the server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeouts returns the read, write and shutdown timeouts of the server
func (s ServerConfig) Timeouts() (read, write, shutdown time.Duration) {
	return parseDurationOr(s.ReadTimeout, 10*time.Second),
		parseDurationOr(s.WriteTimeout, 60*time.Second),
		parseDurationOr(s.ShutdownTimeout, 15*time.Second)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// String returns a string representation of the configuration
func (c *AppConfig) String() string {
	sanitized := *c
	if u, err := url.Parse(c.Upstream.URL); err == nil && u.User != nil {
		u.User = url.User("[REDACTED]")
		sanitized.Upstream.URL = u.String()
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}
