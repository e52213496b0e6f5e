package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the image service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"image-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"IMAGE_API_PORT" envDefault:"8083"`
	LogLevel        string        `env:"IMAGE_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database (required)
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	// Database Connection Pool
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Storage Backend Selection
	StorageBackend string `env:"IMAGE_STORAGE_BACKEND" envDefault:"s3"` // Options: "s3" or "local"

	// Local Storage Configuration
	LocalStoragePath string `env:"IMAGE_LOCAL_STORAGE_PATH"`

	// S3 / R2 Storage Configuration
	S3Endpoint     string `env:"IMAGE_S3_ENDPOINT"`
	S3Region       string `env:"IMAGE_S3_REGION" envDefault:"auto"`
	S3Bucket       string `env:"IMAGE_S3_BUCKET"`
	S3AccessKeyID  string `env:"IMAGE_S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"IMAGE_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `env:"IMAGE_S3_USE_PATH_STYLE" envDefault:"true"`

	// PublicBaseURL is the externally resolvable prefix for object keys. The
	// public URL of a record is always derived from it, never persisted.
	PublicBaseURL string `env:"IMAGE_PUBLIC_URL_BASE"`

	// Image Processing Configuration
	MaxImageBytes   int64  `env:"IMAGE_MAX_BYTES" envDefault:"10485760"`
	LandscapeAspect string `env:"IMAGE_LANDSCAPE_ASPECT" envDefault:"16:9"`
	PortraitAspect  string `env:"IMAGE_PORTRAIT_ASPECT" envDefault:"9:16"`
	JPEGQuality     int    `env:"IMAGE_JPEG_QUALITY" envDefault:"85"`

	// Content Screening Configuration. An empty SCREEN_SERVICE_URL disables
	// screening entirely; that decision is made once at wiring time.
	ScreenServiceURL string        `env:"SCREEN_SERVICE_URL"`
	ScreenTimeout    time.Duration `env:"SCREEN_TIMEOUT" envDefault:"15s"`
	ScreenThreshold  float64       `env:"SCREEN_THRESHOLD" envDefault:"0.2"`
	ScreenDenyLabels []string      `env:"SCREEN_DENY_LABELS" envSeparator:"," envDefault:"BUTTOCKS_EXPOSED,FEMALE_BREAST_EXPOSED,FEMALE_GENITALIA_EXPOSED,ANUS_EXPOSED,MALE_GENITALIA_EXPOSED,FEMALE_BREAST_AREOLA,FEMALE_GENITALIA,MALE_GENITALIA"`
	// ScreenFailOpen controls behavior when the screening service errors or
	// times out: true lets the request proceed unscreened (logged), false
	// fails it. Applied uniformly to create and replace.
	ScreenFailOpen bool `env:"SCREEN_FAIL_OPEN" envDefault:"false"`

	// Authentication. Exactly one mode must be configured: an HS256 shared
	// secret or a JWKS endpoint.
	AuthSecret  string `env:"AUTH_SECRET"`
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
	AuthIssuer  string `env:"AUTH_ISSUER"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.PublicBaseURL = strings.TrimSpace(cfg.PublicBaseURL)
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.AuthJWKSURL = strings.TrimSpace(cfg.AuthJWKSURL)
	cfg.ScreenServiceURL = strings.TrimSpace(cfg.ScreenServiceURL)

	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 * 1024 * 1024
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("IMAGE_JPEG_QUALITY must be within 1-100, got %d", cfg.JPEGQuality)
	}
	if cfg.ScreenThreshold < 0 || cfg.ScreenThreshold > 1 {
		return nil, fmt.Errorf("SCREEN_THRESHOLD must be within 0.0-1.0, got %f", cfg.ScreenThreshold)
	}
	if cfg.AuthSecret == "" && cfg.AuthJWKSURL == "" {
		return nil, fmt.Errorf("either AUTH_SECRET or AUTH_JWKS_URL must be set")
	}
	if cfg.AuthSecret != "" && cfg.AuthJWKSURL != "" {
		return nil, fmt.Errorf("AUTH_SECRET and AUTH_JWKS_URL are mutually exclusive")
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if local storage backend is configured.
func (c *Config) IsLocalStorage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "local"
}

// IsS3Storage returns true if S3 storage backend is configured.
func (c *Config) IsS3Storage() bool {
	backend := strings.ToLower(strings.TrimSpace(c.StorageBackend))
	return backend == "" || backend == "s3"
}

// ScreeningConfigured reports whether a screening service is wired at all.
func (c *Config) ScreeningConfigured() bool {
	return c.ScreenServiceURL != ""
}
