package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/DukeRupert/gatehouse/internal/middleware"
	"github.com/DukeRupert/gatehouse/internal/session"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Session cookie configuration
	SessionCookieName     string
	SessionTimeoutMinutes int
	SessionCookiePath     string
	SessionCookieDomain   string
	SessionCookieHttpOnly bool

	// Auth rate limiting
	LoginRateLimit     int
	LoginRateWindow    time.Duration
	RegisterRateLimit  int
	RegisterRateWindow time.Duration

	// Session cleanup task
	CleanupEnabled  bool
	CleanupInterval time.Duration
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Session cookie defaults
		SessionCookieName:     getEnv("SESSION_COOKIE_NAME", session.DefaultCookieName),
		SessionTimeoutMinutes: getEnvInt("SESSION_TIMEOUT_MINUTES", session.DefaultTimeout),
		SessionCookiePath:     getEnv("SESSION_COOKIE_PATH", session.DefaultCookiePath),
		SessionCookieDomain:   getEnv("SESSION_COOKIE_DOMAIN", ""),
		SessionCookieHttpOnly: getEnvBool("SESSION_COOKIE_HTTPONLY", true),

		// Auth rate limit defaults
		LoginRateLimit:     getEnvInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow:    getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
		RegisterRateLimit:  getEnvInt("REGISTER_RATE_LIMIT", 3),
		RegisterRateWindow: getEnvDuration("REGISTER_RATE_WINDOW", time.Hour),

		// Maintenance defaults
		CleanupEnabled:  getEnvBool("CLEANUP_ENABLED", true),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		TaskTimeout:     getEnvDuration("TASK_TIMEOUT", time.Minute),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SessionTimeoutMinutes < 0 {
		return nil, fmt.Errorf("SESSION_TIMEOUT_MINUTES must not be negative, got: %d", cfg.SessionTimeoutMinutes)
	}

	return cfg, nil
}

// IsProduction reports whether the server is running in production mode.
// Cookie Secure flags and JSON log output key off this.
func (c *Config) IsProduction() bool {
	return c.Env != "development"
}

// SessionSettings builds the cookie settings shared by the auth
// middleware and the handlers.
func (c *Config) SessionSettings() session.Settings {
	return session.Settings{
		Timeout:  c.SessionTimeoutMinutes,
		HttpOnly: c.SessionCookieHttpOnly,
		Secure:   c.IsProduction(),
		Name:     c.SessionCookieName,
		Path:     c.SessionCookiePath,
		Domain:   c.SessionCookieDomain,
	}
}

// AuthRateLimits maps the environment knobs onto the rate limiter config.
func (c *Config) AuthRateLimits() middleware.AuthRateLimitConfig {
	return middleware.AuthRateLimitConfig{
		LoginAttempts:    c.LoginRateLimit,
		LoginWindow:      c.LoginRateWindow,
		RegisterAttempts: c.RegisterRateLimit,
		RegisterWindow:   c.RegisterRateWindow,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
