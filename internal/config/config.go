package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// JWT
	JWTSecret          string
	JWTExpirationHours int

	// Storage
	StorageDriver     string
	StoragePath       string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Background Workers
	WorkerCount int

	// CORS
	AllowedOrigins []string

	// Sentry
	SentryDSN string

	// Settings cache
	RedisURL string

	// PDF
	WkhtmltopdfEnabled bool
	PDFFontPath        string

	// Approval defaults
	AutoApprovalDefault bool
	DefaultPassword     string
	StaleDraftDays      int
	SeedDemoUsers       bool

	// Rate limiting
	RateLimitPerMinute int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		JWTExpirationHours:  getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		StorageDriver:       getEnv("STORAGE_DRIVER", "local"),
		StoragePath:         getEnv("STORAGE_PATH", "./storage"),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Region:            getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:       getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		AllowedOrigins:      getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		WkhtmltopdfEnabled:  getEnvAsBool("WKHTMLTOPDF_ENABLED", false),
		PDFFontPath:         getEnv("PDF_FONT_PATH", ""),
		AutoApprovalDefault: getEnvAsBool("AUTO_APPROVAL_DEFAULT", false),
		DefaultPassword:     getEnv("DEFAULT_PASSWORD", "123456"),
		StaleDraftDays:      getEnvAsInt("STALE_DRAFT_DAYS", 0),
		SeedDemoUsers:       getEnvAsBool("SEED_DEMO_USERS", false),
		RateLimitPerMinute:  getEnvAsInt("RATE_LIMIT_PER_MINUTE", 10),
	}

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	switch cfg.StorageDriver {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool reads an environment variable as boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
