// Package config provides configuration management for the race control service.
package config

import (
	"fmt"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Weather  WeatherConfig  `mapstructure:"weather" validate:"required"`
	Ops      OpsConfig      `mapstructure:"ops" validate:"required"`
	Stream   StreamConfig   `mapstructure:"stream"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// WeatherConfig represents weather provider configuration
type WeatherConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	BaseURL            string  `mapstructure:"base_url" validate:"omitempty,url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts      int     `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	CacheTTLSeconds    int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
	RefreshCron        string  `mapstructure:"refresh_cron" validate:"omitempty,cron"`
	RefreshWindowHours int     `mapstructure:"refresh_window_hours" validate:"required,gt=0"`
}

// OpsConfig represents the operational HTTP server configuration
type OpsConfig struct {
	Port           string `mapstructure:"port" validate:"required"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// StreamConfig represents the live standings websocket feed configuration
type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment reports whether the app runs in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
