package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Alert    AlertConfig
	VoipMs   VoipMsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	QueryTimeout      time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type AuthConfig struct {
	SessionSecret   string
	SessionExpiry   time.Duration
	EnforceCSRF     bool
	CleanupInterval time.Duration
}

type AlertConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	AdminEmail  string
}

type VoipMsConfig struct {
	APIURL      string
	APIUsername string
	APIPassword string
	DID         string
	WebhookKey  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "birdtext"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			QueryTimeout:      getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			SessionSecret:   sessionSecret,
			SessionExpiry:   getEnvAsDuration("SESSION_EXPIRY", 30*24*time.Hour),
			EnforceCSRF:     getEnvAsBool("ENFORCE_CSRF", true),
			CleanupInterval: getEnvAsDuration("LOGIN_ATTEMPT_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Alert: AlertConfig{
			Enabled:     getEnvAsBool("SECURITY_ALERTS_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			AdminEmail:  getEnv("ADMIN_ALERT_EMAIL", ""),
		},
		VoipMs: VoipMsConfig{
			APIURL:      getEnv("VOIPMS_API_URL", "https://voip.ms/api/v1/rest.php"),
			APIUsername: getEnv("VOIPMS_API_USERNAME", ""),
			APIPassword: getEnv("VOIPMS_API_PASSWORD", ""),
			DID:         getEnv("VOIPMS_DID", ""),
			WebhookKey:  getEnv("VOIPMS_WEBHOOK_KEY", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Alert.Enabled && cfg.Alert.AdminEmail == "" {
		return nil, fmt.Errorf("ADMIN_ALERT_EMAIL is required when SECURITY_ALERTS_ENABLED is true")
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
// Controls the Secure attribute on session and CSRF cookies.
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// validateSessionSecret enforces minimum security standards for the session secret
func validateSessionSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires a 256-bit secret
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
