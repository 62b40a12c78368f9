package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitializeViper initializes Viper configuration from environment variables
// and config files. This must be called before Load().
func InitializeViper() error {
	loadEnvFile()
	setupViper()
	setDefaults()
	readConfigFile()

	if err := bindEnvironmentVariables(); err != nil {
		return fmt.Errorf("failed to bind environment variables: %w", err)
	}

	setupDevelopmentLogging()
	return nil
}

// loadEnvFile loads .env file (ignores error if file doesn't exist).
func loadEnvFile() {
	_ = godotenv.Load()
}

// setupViper configures Viper for environment variable and config file reading.
func setupViper() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
}

// readConfigFile reads config file (ignores error if file doesn't exist).
func readConfigFile() {
	_ = viper.ReadInConfig()
}

// bindEnvironmentVariables binds environment variables whose names do not
// follow the dotted-key convention.
func bindEnvironmentVariables() error {
	if err := bindAppEnvVars(); err != nil {
		return fmt.Errorf("failed to bind app env vars: %w", err)
	}
	if err := bindDatabaseEnvVars(); err != nil {
		return fmt.Errorf("failed to bind database env vars: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults - production safe
	viper.SetDefault("app", map[string]any{
		"name":        "bookwatch",
		"version":     "1.0.0",
		"environment": "production",
		"debug":       false,
	})

	// Logger defaults - production safe
	viper.SetDefault("logger", map[string]any{
		"level":       "info",
		"development": false,
		"encoding":    "json",
	})

	// Server defaults - production safe
	viper.SetDefault("server", map[string]any{
		"address":       ":8060",
		"read_timeout":  "15s",
		"write_timeout": "15s",
		"idle_timeout":  "60s",
	})

	// Database defaults - production safe
	viper.SetDefault("database", map[string]any{
		"host":                    "localhost",
		"port":                    5432,
		"user":                    "postgres",
		"database":                "bookwatch",
		"sslmode":                 "disable",
		"max_connections":         25,
		"max_idle_connections":    5,
		"connection_max_lifetime": "5m",
	})

	// Crawler defaults - polite toward the upstream platform
	viper.SetDefault("crawler", map[string]any{
		"concurrency": 4,
		"tasks_file":  "tasks.yml",
		"fetch": map[string]any{
			"max_attempts":        3,
			"initial_backoff":     "500ms",
			"max_backoff":         "10s",
			"backoff_multiplier":  2.0,
			"request_timeout":     "15s",
			"batch_delay":         "500ms",
			"breaker_wait_budget": "90s",
		},
		"breaker": map[string]any{
			"failure_threshold":           1,
			"recovery_timeout":            "60s",
			"half_open_max_calls":         1,
			"half_open_success_threshold": 1,
			"reset_timeout":               "120s",
		},
	})

	// Scheduler defaults
	viper.SetDefault("scheduler", map[string]any{
		"misfire_grace":         "60s",
		"default_max_retries":   3,
		"default_max_instances": 1,
		"history_limit":         20,
	})
}

// bindAppEnvVars binds application and logger environment variables to config keys.
func bindAppEnvVars() error {
	if err := viper.BindEnv("app.environment", "APP_ENV"); err != nil {
		return fmt.Errorf("failed to bind APP_ENV: %w", err)
	}
	if err := viper.BindEnv("app.debug", "APP_DEBUG"); err != nil {
		return fmt.Errorf("failed to bind APP_DEBUG: %w", err)
	}
	if err := viper.BindEnv("logger.level", "LOG_LEVEL"); err != nil {
		return fmt.Errorf("failed to bind LOG_LEVEL: %w", err)
	}
	if err := viper.BindEnv("logger.encoding", "LOG_FORMAT"); err != nil {
		return fmt.Errorf("failed to bind LOG_FORMAT: %w", err)
	}
	return nil
}

// bindDatabaseEnvVars binds PostgreSQL environment variables to config keys.
func bindDatabaseEnvVars() error {
	if err := viper.BindEnv("database.host", "POSTGRES_HOST"); err != nil {
		return fmt.Errorf("failed to bind POSTGRES_HOST: %w", err)
	}
	if err := viper.BindEnv("database.port", "POSTGRES_PORT"); err != nil {
		return fmt.Errorf("failed to bind POSTGRES_PORT: %w", err)
	}
	if err := viper.BindEnv("database.user", "POSTGRES_USER"); err != nil {
		return fmt.Errorf("failed to bind POSTGRES_USER: %w", err)
	}
	if err := viper.BindEnv("database.password", "POSTGRES_PASSWORD"); err != nil {
		return fmt.Errorf("failed to bind POSTGRES_PASSWORD: %w", err)
	}
	if err := viper.BindEnv("database.database", "POSTGRES_DB"); err != nil {
		return fmt.Errorf("failed to bind POSTGRES_DB: %w", err)
	}
	return nil
}

// setupDevelopmentLogging configures development logging based on environment
// and the debug flag.
func setupDevelopmentLogging() {
	debugFlag := viper.GetBool("app.debug")
	isDev := viper.GetString("app.environment") == "development"

	if debugFlag {
		viper.Set("logger.level", "debug")
	}

	if isDev {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}
}
