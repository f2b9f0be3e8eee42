package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	apperrors "graph-identity/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Graph labels. These are composed into query text, never user input.
	PrincipalLabel     string
	RoleLabel          string
	ExternalLoginLabel string

	EnsureConstraints  bool
	ExtendedOperations bool // delete, isInRole, removeRole, removeExternalLogin

	Password PasswordConfig
	Lockout  LockoutConfig
}

// PasswordConfig mirrors the identity framework's password validator options
type PasswordConfig struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// LockoutConfig controls account lockout after repeated failed logins
type LockoutConfig struct {
	EnabledByDefault  bool
	Duration          time.Duration
	MaxFailedAttempts int
}

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		Neo4jURI:           getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:          getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:      getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:      getEnv("NEO4J_DATABASE", ""),
		PrincipalLabel:     getEnv("GRAPH_PRINCIPAL_LABEL", "User"),
		RoleLabel:          getEnv("GRAPH_ROLE_LABEL", "Role"),
		ExternalLoginLabel: getEnv("GRAPH_EXTERNAL_LOGIN_LABEL", "ExternalLogin"),
		EnsureConstraints:  getEnvBool("GRAPH_ENSURE_CONSTRAINTS", false),
		ExtendedOperations: getEnvBool("IDENTITY_EXTENDED_OPERATIONS", false),
		Password: PasswordConfig{
			MinLength:              getEnvInt("PASSWORD_MIN_LENGTH", 6),
			RequireDigit:           getEnvBool("PASSWORD_REQUIRE_DIGIT", true),
			RequireLowercase:       getEnvBool("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireUppercase:       getEnvBool("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireNonAlphanumeric: getEnvBool("PASSWORD_REQUIRE_NON_ALPHANUMERIC", true),
		},
		Lockout: LockoutConfig{
			EnabledByDefault:  getEnvBool("LOCKOUT_ENABLED_BY_DEFAULT", true),
			Duration:          getEnvDuration("LOCKOUT_DURATION", 5*time.Minute),
			MaxFailedAttempts: getEnvInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigValidationFailed("NEO4J_URI", "is required")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigValidationFailed("NEO4J_USER", "is required")
	}
	labels := map[string]string{
		"GRAPH_PRINCIPAL_LABEL":      c.PrincipalLabel,
		"GRAPH_ROLE_LABEL":           c.RoleLabel,
		"GRAPH_EXTERNAL_LOGIN_LABEL": c.ExternalLoginLabel,
	}
	for field, label := range labels {
		if !labelPattern.MatchString(label) {
			return apperrors.NewConfigValidationFailed(field, fmt.Sprintf("%q is not a valid label", label))
		}
	}
	if c.Password.MinLength < 1 {
		return apperrors.NewConfigValidationFailed("PASSWORD_MIN_LENGTH", "must be at least 1")
	}
	if c.Lockout.MaxFailedAttempts < 1 {
		return apperrors.NewConfigValidationFailed("LOCKOUT_MAX_FAILED_ATTEMPTS", "must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return apperrors.NewConfigValidationFailed("LOCKOUT_DURATION", "must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
