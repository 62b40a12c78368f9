// Package config provides configuration management for the bookwatch service.
// It handles loading, validation, and access to configuration values from
// YAML files and environment variables via Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jonesrussell/bookwatch/internal/breaker"
	"github.com/jonesrussell/bookwatch/internal/fetch"
	"github.com/jonesrussell/bookwatch/internal/logger"
)

// Config represents the application configuration.
type Config struct {
	// App identifies the running service.
	App AppConfig `mapstructure:"app"`
	// Logger holds logging configuration.
	Logger logger.Config `mapstructure:"logger"`
	// Server holds HTTP API server configuration.
	Server ServerConfig `mapstructure:"server"`
	// Database holds PostgreSQL configuration.
	Database DatabaseConfig `mapstructure:"database"`
	// Crawler holds crawl pipeline configuration.
	Crawler CrawlerConfig `mapstructure:"crawler"`
	// Scheduler holds job scheduler configuration.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds the HTTP API server settings.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

// DSN returns the PostgreSQL connection string for lib/pq.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// CrawlerConfig holds crawl pipeline configuration.
type CrawlerConfig struct {
	// Fetch configures the retrying HTTP client.
	Fetch fetch.Config `mapstructure:"fetch"`
	// Breaker configures the shared circuit breaker.
	Breaker BreakerConfig `mapstructure:"breaker"`
	// Concurrency bounds in-flight detail fetches during fan-out.
	Concurrency int `mapstructure:"concurrency"`
	// TasksFile is the path to the crawl task definitions.
	TasksFile string `mapstructure:"tasks_file"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold         int           `mapstructure:"failure_threshold"`
	RecoveryTimeout          time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenMaxCalls         int           `mapstructure:"half_open_max_calls"`
	HalfOpenSuccessThreshold int           `mapstructure:"half_open_success_threshold"`
	ResetTimeout             time.Duration `mapstructure:"reset_timeout"`
}

// Breaker converts the section into a breaker.Config. The caller wires the
// state change callback.
func (c BreakerConfig) Breaker() breaker.Config {
	return breaker.Config{
		FailureThreshold:         c.FailureThreshold,
		RecoveryTimeout:          c.RecoveryTimeout,
		HalfOpenMaxCalls:         c.HalfOpenMaxCalls,
		HalfOpenSuccessThreshold: c.HalfOpenSuccessThreshold,
		ResetTimeout:             c.ResetTimeout,
	}
}

// SchedulerConfig holds job scheduler settings.
type SchedulerConfig struct {
	// MisfireGrace is how late a trigger may fire before the run is skipped.
	MisfireGrace time.Duration `mapstructure:"misfire_grace"`
	// DefaultMaxRetries applies to jobs that do not set their own.
	DefaultMaxRetries int `mapstructure:"default_max_retries"`
	// DefaultMaxInstances applies to jobs that do not set their own.
	DefaultMaxInstances int `mapstructure:"default_max_instances"`
	// HistoryLimit caps execution rows returned per job by the API.
	HistoryLimit int `mapstructure:"history_limit"`
}

// Load builds the configuration from Viper's merged settings. InitializeViper
// must run first.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values no command can run with.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return &ValidationError{Field: "server.address", Value: c.Server.Address, Reason: "must not be empty"}
	}
	if c.Database.Host == "" {
		return &ValidationError{Field: "database.host", Value: c.Database.Host, Reason: "must not be empty"}
	}
	if c.Database.Port <= 0 {
		return &ValidationError{Field: "database.port", Value: c.Database.Port, Reason: "must be positive"}
	}
	if c.Crawler.Concurrency <= 0 {
		return &ValidationError{Field: "crawler.concurrency", Value: c.Crawler.Concurrency, Reason: "must be positive"}
	}
	if c.Crawler.TasksFile == "" {
		return &ValidationError{Field: "crawler.tasks_file", Value: c.Crawler.TasksFile, Reason: "must not be empty"}
	}
	return nil
}
