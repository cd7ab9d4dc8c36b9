package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig

	// Redis configuration (trip cache and rate limiting)
	Redis RedisConfig

	// Rate limiting configuration for auth endpoints
	RateLimit RateLimitConfig

	// RabbitMQ configuration for booking events
	RabbitMQ RabbitMQConfig

	// Audit log configuration
	Audit AuditConfig

	// Background jobs configuration
	Jobs JobsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	Driver             string // postgres (lib/pq) or pgx
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	CookieName         string
	CookieDomain       string
	CookieSecure       bool
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost       int
	EnableRequestLog bool
	EnableAuditLog   bool
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	TripCacheTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RabbitMQConfig holds broker settings. An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// AuditConfig selects where audit events are written
type AuditConfig struct {
	Sink          string // postgres, mongo or none
	MongoURI      string
	MongoDatabase string
	Retention     time.Duration // zero keeps entries forever
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	ReconcileSchedule string // cron spec with seconds, empty disables
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 86400)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
			CookieName:         getEnv("AUTH_COOKIE_NAME", "token"),
			CookieDomain:       getEnv("AUTH_COOKIE_DOMAIN", ""),
			CookieSecure:       getEnvAsBool("AUTH_COOKIE_SECURE", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			BcryptCost:       getEnvAsInt("BCRYPT_COST", 10),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			TripCacheTTL: getEnvAsDuration("TRIP_CACHE_TTL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("AUTH_RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvAsDuration("AUTH_RATE_LIMIT_WINDOW", time.Minute),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "bookings"),
		},
		Audit: AuditConfig{
			Sink:          getEnv("AUDIT_SINK", "postgres"),
			MongoURI:      getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "travel_booking"),
			Retention:     time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 90)) * 24 * time.Hour,
		},
		Jobs: JobsConfig{
			ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 0 3 * * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'pgx')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Security.BcryptCost)
	}

	switch c.Audit.Sink {
	case "postgres", "none":
	case "mongo":
		if c.Audit.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when AUDIT_SINK is 'mongo'")
		}
	default:
		return fmt.Errorf("invalid AUDIT_SINK: %s (must be 'postgres', 'mongo' or 'none')", c.Audit.Sink)
	}

	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("AUTH_RATE_LIMIT_REQUESTS must be positive")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
