// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	DBURL    string `mapstructure:"DB_URL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// Azure DevOps API access.
	AzureOrgURL    string        `mapstructure:"AZURE_DEVOPS_ORG_URL"`
	AzurePAT       string        `mapstructure:"AZURE_DEVOPS_PAT"`
	Organization   string        `mapstructure:"ORGANIZATION"`
	Projects       []string      `mapstructure:"PROJECTS"`
	APITimeout     time.Duration `mapstructure:"API_TIMEOUT"`
	RetryAttempts  int           `mapstructure:"RETRY_ATTEMPTS"`
	RateLimitDelay time.Duration `mapstructure:"RATE_LIMIT_DELAY"`
	BatchSize      int           `mapstructure:"BATCH_SIZE"`

	// Polling worker behavior.
	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
	StaleThreshold time.Duration `mapstructure:"STALE_RUNNING_THRESHOLD"`

	// Result store retention and artifact output.
	ResultRetentionDays int    `mapstructure:"RESULT_RETENTION_DAYS"`
	OutputDir           string `mapstructure:"OUTPUT_DIR"`
}

// LoadConfig reads configuration from a .env file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("API_TIMEOUT", "30s")
	viper.SetDefault("RETRY_ATTEMPTS", 3)
	viper.SetDefault("RATE_LIMIT_DELAY", "1s")
	viper.SetDefault("BATCH_SIZE", 100)
	viper.SetDefault("POLL_INTERVAL", "10s")
	viper.SetDefault("STALE_RUNNING_THRESHOLD", "5m")
	viper.SetDefault("RESULT_RETENTION_DAYS", 90)
	viper.SetDefault("OUTPUT_DIR", "output")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables. AutomaticEnv alone does not surface
	// env-only keys to Unmarshal; keys without defaults must be bound
	// explicitly or they are invisible when no .env file is present.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{
		"LOG_LEVEL", "DB_URL", "HTTP_ADDR",
		"AZURE_DEVOPS_ORG_URL", "AZURE_DEVOPS_PAT", "ORGANIZATION", "PROJECTS",
		"API_TIMEOUT", "RETRY_ATTEMPTS", "RATE_LIMIT_DELAY", "BATCH_SIZE",
		"POLL_INTERVAL", "STALE_RUNNING_THRESHOLD",
		"RESULT_RETENTION_DAYS", "OUTPUT_DIR",
	} {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.AzureOrgURL == "" {
		return nil, errors.New("AZURE_DEVOPS_ORG_URL is a required configuration field")
	}
	if cfg.AzurePAT == "" {
		return nil, errors.New("AZURE_DEVOPS_PAT is a required configuration field")
	}
	if cfg.Organization == "" {
		return nil, errors.New("ORGANIZATION is a required configuration field")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("BATCH_SIZE must be positive")
	}
	if cfg.RetryAttempts <= 0 {
		return nil, errors.New("RETRY_ATTEMPTS must be positive")
	}

	return &cfg, nil
}
