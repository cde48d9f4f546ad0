package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the fleetgate server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Storage    StorageConfig
	Safety     SafetyConfig
	Media      MediaConfig
	Onboarding OnboardingConfig
	Reconcile  ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
	MaxUploadBytes    int64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
	Timeout    time.Duration
}

type StorageConfig struct {
	BaseURL        string
	ServiceKey     string
	DocumentBucket string
	ImageBucket    string
	Timeout        time.Duration
}

// SafetyConfig configures the image safety classifier and gate.
type SafetyConfig struct {
	VisionURL      string
	APIKey         string
	Timeout        time.Duration
	FailOpen       bool
	MaxConcurrency int
	RequestsPerSec float64
	VerdictTTL     time.Duration
}

type MediaConfig struct {
	MaxExterior   int
	MaxInterior   int
	MaxImageBytes int64
}

type OnboardingConfig struct {
	MaxDocuments     int
	MaxDocumentBytes int64
}

type ReconcileConfig struct {
	Interval time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("FLEETGATE_PORT", 8080),
			Env:               envString("APP_ENV", "development"),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 30),
			MaxUploadBytes:    int64(envInt("MAX_UPLOAD_BYTES", 50<<20)),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:    envDuration("DATABASE_QUERY_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("AUTH_JWT_SECRET"),
			SessionTTL: envDuration("AUTH_SESSION_TTL", 24*time.Hour),
			Timeout:    envDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			BaseURL:        os.Getenv("STORAGE_BASE_URL"),
			ServiceKey:     os.Getenv("STORAGE_SERVICE_KEY"),
			DocumentBucket: envString("STORAGE_DOCUMENT_BUCKET", "sacco-docs"),
			ImageBucket:    envString("STORAGE_IMAGE_BUCKET", "vehicle-images"),
			Timeout:        envDuration("STORAGE_TIMEOUT", 30*time.Second),
		},
		Safety: SafetyConfig{
			VisionURL:      envString("SAFETY_VISION_URL", "https://vision.googleapis.com"),
			APIKey:         os.Getenv("SAFETY_VISION_API_KEY"),
			Timeout:        envDurationSecs("SAFETY_TIMEOUT_SECS", 15*time.Second),
			FailOpen:       envBool("SAFETY_FAIL_OPEN", false),
			MaxConcurrency: envInt("SAFETY_MAX_CONCURRENCY", 4),
			RequestsPerSec: envFloat("SAFETY_REQUESTS_PER_SEC", 10),
			VerdictTTL:     envDuration("SAFETY_VERDICT_TTL", 24*time.Hour),
		},
		Media: MediaConfig{
			MaxExterior:   envInt("MEDIA_MAX_EXTERIOR", 4),
			MaxInterior:   envInt("MEDIA_MAX_INTERIOR", 4),
			MaxImageBytes: int64(envInt("MEDIA_MAX_IMAGE_BYTES", 8<<20)),
		},
		Onboarding: OnboardingConfig{
			MaxDocuments:     envInt("ONBOARDING_MAX_DOCUMENTS", 5),
			MaxDocumentBytes: int64(envInt("ONBOARDING_MAX_DOCUMENT_BYTES", 10<<20)),
		},
		Reconcile: ReconcileConfig{
			Interval: envDuration("RECONCILE_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes in production")
	}

	if c.Storage.BaseURL == "" {
		return fmt.Errorf("STORAGE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Storage.BaseURL, "http://") && !strings.HasPrefix(c.Storage.BaseURL, "https://") {
		return fmt.Errorf("STORAGE_BASE_URL must start with http:// or https://, got %q", c.Storage.BaseURL)
	}
	if c.Storage.ServiceKey == "" {
		return fmt.Errorf("STORAGE_SERVICE_KEY is required")
	}

	if c.Safety.FailOpen && c.IsProduction() {
		return fmt.Errorf("SAFETY_FAIL_OPEN must not be enabled when APP_ENV is production")
	}
	if c.Safety.APIKey == "" && !c.Safety.FailOpen {
		return fmt.Errorf("SAFETY_VISION_API_KEY is required unless SAFETY_FAIL_OPEN is set")
	}
	if c.Safety.MaxConcurrency <= 0 {
		return fmt.Errorf("SAFETY_MAX_CONCURRENCY must be positive, got %d", c.Safety.MaxConcurrency)
	}

	if c.Media.MaxExterior < 0 || c.Media.MaxInterior < 0 {
		return fmt.Errorf("MEDIA_MAX_EXTERIOR and MEDIA_MAX_INTERIOR must not be negative")
	}

	if c.Onboarding.MaxDocuments <= 0 {
		return fmt.Errorf("ONBOARDING_MAX_DOCUMENTS must be positive, got %d", c.Onboarding.MaxDocuments)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
