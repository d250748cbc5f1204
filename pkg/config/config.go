package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the inspection engine.
// Values come from config.yaml with environment variable overrides.
// Secrets (database password, provider API key) are read from the environment only.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"`

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Rules      RulesConfig      `yaml:"rules"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string        `yaml:"user" env:"PGUSER" env-default:"nivaasika"`
	Password        string        `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string        `yaml:"database" env:"PGDATABASE" env-default:"nivaasika"`
	SSLMode         string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections  int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
}

// RedisConfig holds the optional Redis used to share the rate-limit log
// between processes. An empty host keeps the limiter in memory.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Key      string `yaml:"key" env:"REDIS_RATE_LIMIT_KEY" env-default:"nivaasika:vision:requests"`
}

// Enabled reports whether a Redis host was configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// RateLimitConfig bounds calls to the vision provider.
type RateLimitConfig struct {
	MaxRequests  int           `yaml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" env-default:"10"`
	Window       time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"60s"`
	SafetyBuffer time.Duration `yaml:"safety_buffer" env:"RATE_LIMIT_SAFETY_BUFFER" env-default:"1s"`
}

// ClassifierConfig selects and tunes the vision provider.
type ClassifierConfig struct {
	Provider            string        `yaml:"provider" env:"CLASSIFIER_PROVIDER" env-default:"gemini"`
	BaseURL             string        `yaml:"base_url" env:"CLASSIFIER_BASE_URL" env-default:""`
	Model               string        `yaml:"model" env:"CLASSIFIER_MODEL" env-default:"gemini-2.0-flash"`
	APIKey              string        `yaml:"-" env:"CLASSIFIER_API_KEY"` // Secret - not in YAML
	MaxTokens           int           `yaml:"max_tokens" env:"CLASSIFIER_MAX_TOKENS" env-default:"1024"`
	Timeout             time.Duration `yaml:"timeout" env:"CLASSIFIER_TIMEOUT" env-default:"60s"`
	MaxConcurrentImages int           `yaml:"max_concurrent_images" env:"CLASSIFIER_MAX_CONCURRENT_IMAGES" env-default:"3"`
	MockMode            bool          `yaml:"mock_mode" env:"CLASSIFIER_MOCK_MODE" env-default:"false"`
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"CLASSIFIER_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter   time.Duration `yaml:"breaker_reset_after" env:"CLASSIFIER_BREAKER_RESET_AFTER" env-default:"30s"`
}

// RulesConfig points at the improvement rule seed file.
type RulesConfig struct {
	SeedPath string `yaml:"seed_path" env:"RULES_SEED_PATH" env-default:"rules.yaml"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Load reads .env (when present), then the YAML file at path with
// environment variable overrides. The version is set on the returned Config.
func Load(path, version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.Classifier.MaxConcurrentImages <= 0 {
		return fmt.Errorf("classifier.max_concurrent_images must be positive")
	}
	switch strings.ToLower(c.Classifier.Provider) {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("classifier.provider %q is not supported", c.Classifier.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
