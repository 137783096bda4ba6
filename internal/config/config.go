// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/warden/internal/response"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Risk scoring
	WeightKeystroke float64
	WeightPointer   float64

	// Escalation thresholds (0-100, strictly descending)
	ThresholdCritical float64
	ThresholdHigh     float64
	ThresholdMedium   float64
	ThresholdLow      float64

	// Sessions
	SessionTimeout      time.Duration
	CleanupInterval     time.Duration
	MaxEventsPerSession int
	ArchiveKeep         int

	// Anomaly detection
	ConsecutiveAnomalyThreshold int
	PatternBlockThreshold       int
	SignatureMaxAge             time.Duration // 0 disables age-based signature pruning

	// Response
	BlockDuration    time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration

	// Notifications
	NotifyQueueSize int
	SiemURL         string // optional SIEM collector endpoint
	SiemAPIKey      string

	// Identity directory (optional enrichment). URL takes precedence over
	// a static file export.
	DirectoryURL   string
	DirectoryToken string
	DirectoryFile  string

	// Security
	AdminSecret        string // Admin API secret
	RateLimitPerMinute int
}

// Defaults
const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 600 // per-key events per minute, sized for live typing

	DefaultWeightKeystroke = 0.6
	DefaultWeightPointer   = 0.4

	DefaultSessionTimeoutSeconds  = 3600
	DefaultCleanupIntervalSeconds = 3600
	DefaultMaxEventsPerSession    = 1000
	DefaultArchiveKeep            = 10

	DefaultConsecutiveAnomalyThreshold = 5
	DefaultPatternBlockThreshold       = 3

	DefaultBlockDurationSeconds  = 3600
	DefaultBreakerThreshold      = 5
	DefaultBreakerTimeoutSeconds = 60

	DefaultNotifyQueueSize = 256
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	thresholds := response.DefaultThresholds()

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set

		WeightKeystroke: getEnvFloat("RISK_WEIGHT_KEYSTROKE", DefaultWeightKeystroke),
		WeightPointer:   getEnvFloat("RISK_WEIGHT_POINTER", DefaultWeightPointer),

		ThresholdCritical: getEnvFloat("THRESHOLD_CRITICAL", thresholds.Critical),
		ThresholdHigh:     getEnvFloat("THRESHOLD_HIGH", thresholds.High),
		ThresholdMedium:   getEnvFloat("THRESHOLD_MEDIUM", thresholds.Medium),
		ThresholdLow:      getEnvFloat("THRESHOLD_LOW", thresholds.Low),

		SessionTimeout:      getEnvSeconds("SESSION_TIMEOUT_SECONDS", DefaultSessionTimeoutSeconds),
		CleanupInterval:     getEnvSeconds("SESSION_CLEANUP_INTERVAL_SECONDS", DefaultCleanupIntervalSeconds),
		MaxEventsPerSession: int(getEnvInt64("SESSION_MAX_EVENTS", DefaultMaxEventsPerSession)),
		ArchiveKeep:         int(getEnvInt64("SESSION_ARCHIVE_KEEP", DefaultArchiveKeep)),

		ConsecutiveAnomalyThreshold: int(getEnvInt64("CONSECUTIVE_ANOMALY_THRESHOLD", DefaultConsecutiveAnomalyThreshold)),
		PatternBlockThreshold:       int(getEnvInt64("PATTERN_BLOCK_THRESHOLD", DefaultPatternBlockThreshold)),
		SignatureMaxAge:             getEnvSeconds("SIGNATURE_MAX_AGE_SECONDS", 0),

		BlockDuration:    getEnvSeconds("BLOCK_DURATION_SECONDS", DefaultBlockDurationSeconds),
		BreakerThreshold: int(getEnvInt64("BREAKER_FAILURE_THRESHOLD", DefaultBreakerThreshold)),
		BreakerTimeout:   getEnvSeconds("BREAKER_TIMEOUT_SECONDS", DefaultBreakerTimeoutSeconds),

		NotifyQueueSize: int(getEnvInt64("NOTIFY_QUEUE_SIZE", DefaultNotifyQueueSize)),
		SiemURL:         os.Getenv("SIEM_URL"),
		SiemAPIKey:      os.Getenv("SIEM_API_KEY"),

		DirectoryURL:   os.Getenv("DIRECTORY_URL"),
		DirectoryToken: os.Getenv("DIRECTORY_TOKEN"),
		DirectoryFile:  os.Getenv("DIRECTORY_FILE"),

		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		RateLimitPerMinute: int(getEnvInt64("RATE_LIMIT_PER_MINUTE", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.WeightKeystroke <= 0 || c.WeightPointer <= 0 {
		return fmt.Errorf("risk weights must be positive")
	}
	if math.Abs(c.WeightKeystroke+c.WeightPointer-1.0) > 1e-9 {
		return fmt.Errorf("risk weights must sum to 1.0, got %.4f", c.WeightKeystroke+c.WeightPointer)
	}

	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_SECONDS must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL_SECONDS must be positive")
	}
	if c.MaxEventsPerSession <= 0 {
		return fmt.Errorf("SESSION_MAX_EVENTS must be positive")
	}
	if c.ArchiveKeep <= 0 {
		return fmt.Errorf("SESSION_ARCHIVE_KEEP must be positive")
	}

	if c.ConsecutiveAnomalyThreshold < 1 {
		return fmt.Errorf("CONSECUTIVE_ANOMALY_THRESHOLD must be at least 1")
	}
	if c.PatternBlockThreshold < 1 {
		return fmt.Errorf("PATTERN_BLOCK_THRESHOLD must be at least 1")
	}
	if c.SignatureMaxAge < 0 {
		return fmt.Errorf("SIGNATURE_MAX_AGE_SECONDS must not be negative")
	}

	if c.BlockDuration <= 0 {
		return fmt.Errorf("BLOCK_DURATION_SECONDS must be positive")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.BreakerTimeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT_SECONDS must be positive")
	}

	return nil
}

// Thresholds returns the configured escalation thresholds.
func (c *Config) Thresholds() response.Thresholds {
	return response.Thresholds{
		Critical: c.ThresholdCritical,
		High:     c.ThresholdHigh,
		Medium:   c.ThresholdMedium,
		Low:      c.ThresholdLow,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int64) time.Duration {
	return time.Duration(getEnvInt64(key, defaultSeconds)) * time.Second
}
