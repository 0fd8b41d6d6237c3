package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	Matching  MatchingConfig
	RateLimit RateLimitConfig
	Feed      FeedConfig
	Report    ReportConfig
	Stores    map[string]string
}

// ServerConfig holds the HTTP API configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CacheConfig holds the persistent verdict cache configuration.
// Found results live longer than not-found ones: prices move on campaign
// schedules while new stock can appear any day.
type CacheConfig struct {
	Dir             string `mapstructure:"dir"`
	TTLFoundDays    int    `mapstructure:"ttl_found_days"`
	TTLNotFoundDays int    `mapstructure:"ttl_not_found_days"`
}

// MatchingConfig holds validation configuration
type MatchingConfig struct {
	AcceptThreshold    float64 `mapstructure:"accept_threshold"`
	EnableDebugLogging bool    `mapstructure:"enable_debug_logging"`
}

// RateLimitConfig holds outbound pacing configuration
type RateLimitConfig struct {
	MinGapSeconds      float64 `mapstructure:"min_gap_seconds"`
	SlowModeMultiplier float64 `mapstructure:"slow_mode_multiplier"`
	CircuitThreshold   float64 `mapstructure:"circuit_threshold"`
	WindowSize         int     `mapstructure:"window_size"`
}

// FeedConfig holds the merchant feed location
type FeedConfig struct {
	Path string `mapstructure:"path"`
}

// ReportConfig holds the comparison report destination
type ReportConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricewatch/")

	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional - env vars and defaults cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Cache defaults
	v.SetDefault("cache.dir", "./cache")
	v.SetDefault("cache.ttl_found_days", 10)
	v.SetDefault("cache.ttl_not_found_days", 4)

	// Matching defaults
	v.SetDefault("matching.accept_threshold", 0.65)
	v.SetDefault("matching.enable_debug_logging", false)

	// Rate limit defaults
	v.SetDefault("ratelimit.min_gap_seconds", 7.5)
	v.SetDefault("ratelimit.slow_mode_multiplier", 2.0)
	v.SetDefault("ratelimit.circuit_threshold", 0.30)
	v.SetDefault("ratelimit.window_size", 20)

	// Feed and report defaults
	v.SetDefault("feed.path", "./feed.xml")
	v.SetDefault("report.path", "./output/comparison.csv")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.TTLFoundDays <= 0 || config.Cache.TTLNotFoundDays <= 0 {
		return fmt.Errorf("cache TTLs must be positive, got found=%d not_found=%d",
			config.Cache.TTLFoundDays, config.Cache.TTLNotFoundDays)
	}

	if t := config.Matching.AcceptThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("matching accept threshold must be in (0, 1], got: %v", t)
	}

	if config.RateLimit.MinGapSeconds <= 0 {
		return fmt.Errorf("rate limit min gap must be positive, got: %v", config.RateLimit.MinGapSeconds)
	}

	if t := config.RateLimit.CircuitThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("circuit threshold must be in (0, 1), got: %v", t)
	}

	if config.RateLimit.WindowSize <= 0 {
		return fmt.Errorf("rate limit window size must be positive, got: %d", config.RateLimit.WindowSize)
	}

	return nil
}
