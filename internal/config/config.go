package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	// Terminal
	Env      string `mapstructure:"APP_ENV"` // development | production
	DeviceIP string `mapstructure:"DEVICE_IP"`

	// Remote backend
	APIBaseURL         string `mapstructure:"API_BASE_URL"`
	HTTPTimeoutSeconds int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`

	// Redis — session store and receipt job queues. Empty = in-memory
	// session only, receipt pipeline disabled.
	RedisURL string `mapstructure:"REDIS_URL"`

	// Receipt pipeline
	WorkerPoolSize     int    `mapstructure:"WORKER_POOL_SIZE"`
	ReceiptStoragePath string `mapstructure:"RECEIPT_STORAGE_PATH"`
	BusinessName       string `mapstructure:"BUSINESS_NAME"`

	// Search
	SearchDebounceMS int `mapstructure:"SEARCH_DEBOUNCE_MS"`

	// SMTP (receipt email)
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	// Stub backend (cmd/mockapi)
	MockAPIPort int    `mapstructure:"MOCKAPI_PORT"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
}

// HTTPTimeout returns the configured request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// SearchDebounce returns the configured debounce delay as a duration.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

// Load reads configuration from environment variables (and optional .env file).
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Sensible defaults for development
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DEVICE_IP", "127.0.0.1")
	viper.SetDefault("API_BASE_URL", "http://localhost:8000")
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 15)
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("WORKER_POOL_SIZE", 2)
	viper.SetDefault("RECEIPT_STORAGE_PATH", "/tmp/movilpos/receipts")
	viper.SetDefault("BUSINESS_NAME", "MovilPOS")
	viper.SetDefault("SEARCH_DEBOUNCE_MS", 500)
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("MOCKAPI_PORT", 8000)
	viper.SetDefault("JWT_SECRET", "dev-secret")

	// Optional .env file for local development — does not fail if missing
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
