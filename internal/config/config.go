package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Services ServicesConfig
	Workflow WorkflowConfig
	Redis    RedisConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret          string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	OpenAIAPIKey          string
	SerperAPIKey          string
	EmailListVerifyAPIKey string
	ResendAPIKey          string
	DefaultEmailSender    string
	ExportDir             string
	WebAppURI             string
}

// WorkflowConfig holds the knobs applied to every campaign run unless the
// caller overrides them per run.
type WorkflowConfig struct {
	StageTimeout    time.Duration // upper bound for each pipeline stage
	RunTimeout      time.Duration // upper bound for a whole run
	RetryAttempts   int           // retries per item on transient failures
	ItemConcurrency int           // concurrent per-item calls inside a stage
}

// RedisConfig holds optional Redis cache configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Auth.GoogleClientID, err = requireEnv("GOOGLE_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.Auth.GoogleClientSecret, err = requireEnv("GOOGLE_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Auth.GoogleRedirectURI, err = requireEnv("GOOGLE_REDIRECT_URI"); err != nil {
		return nil, err
	}

	// Services configuration
	if cfg.Services.OpenAIAPIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.SerperAPIKey, err = requireEnv("SERPER_API_KEY"); err != nil {
		return nil, err
	}
	// Validation degrades to Unknown when the key is missing, so it is not required here.
	cfg.Services.EmailListVerifyAPIKey = os.Getenv("EMAILLISTVERIFY_API_KEY")
	if cfg.Services.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.DefaultEmailSender, err = requireEnv("DEFAULT_EMAIL_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	cfg.Services.ExportDir = getEnvWithDefault("EXPORT_DIR", "exports")
	cfg.Services.WebAppURI = getEnvWithDefault("WEB_APP_URI", "localhost:3000")

	// Workflow configuration
	stageTimeout := getEnvWithDefault("WORKFLOW_STAGE_TIMEOUT", "2m")
	cfg.Workflow.StageTimeout, err = time.ParseDuration(stageTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WORKFLOW_STAGE_TIMEOUT: %w", err)
	}

	runTimeout := getEnvWithDefault("WORKFLOW_RUN_TIMEOUT", "15m")
	cfg.Workflow.RunTimeout, err = time.ParseDuration(runTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WORKFLOW_RUN_TIMEOUT: %w", err)
	}

	retryAttempts := getEnvWithDefault("WORKFLOW_RETRY_ATTEMPTS", "1")
	cfg.Workflow.RetryAttempts, err = strconv.Atoi(retryAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WORKFLOW_RETRY_ATTEMPTS: %w", err)
	}

	itemConcurrency := getEnvWithDefault("WORKFLOW_ITEM_CONCURRENCY", "4")
	cfg.Workflow.ItemConcurrency, err = strconv.Atoi(itemConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WORKFLOW_ITEM_CONCURRENCY: %w", err)
	}

	// Redis configuration (optional cache for progress polling)
	cfg.Redis.Enabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	if cfg.Redis.Enabled {
		if cfg.Redis.Host, err = requireEnv("REDIS_HOST"); err != nil {
			return nil, err
		}
		redisPort := getEnvWithDefault("REDIS_PORT", "6379")
		cfg.Redis.Port, err = strconv.Atoi(redisPort)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		redisDB := getEnvWithDefault("REDIS_DB", "0")
		cfg.Redis.DB, err = strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
		}
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
