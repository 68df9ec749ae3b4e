// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// KnownChannels are the accepted DELIVERY_CHANNELS entries.
var KnownChannels = []string{"log", "ses", "sns", "sqs", "webhook"}

type Config struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Env      string `yaml:"env"`

	// Storage
	StoreDriver string `yaml:"store_driver"`
	SQLitePath  string `yaml:"sqlite_path"`

	// Database
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`

	// Redis
	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// AWS services
	AWSRegion    string `yaml:"aws_region"`
	AWSEndpoint  string `yaml:"aws_endpoint"` // LocalStack
	SESFromEmail string `yaml:"ses_from_email"`
	SNSTopicARN  string `yaml:"sns_topic_arn"`
	SQSQueueURL  string `yaml:"sqs_queue_url"`

	// Webhook
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`

	// Delivery
	DeliveryChannels []string      `yaml:"delivery_channels"`
	DiscoveryCron    string        `yaml:"discovery_cron"`
	DeliveryCron     string        `yaml:"delivery_cron"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxRetries       int           `yaml:"max_retries"`
	ClaimTTL         time.Duration `yaml:"claim_ttl"`
	SimulatedTime    string        `yaml:"simulated_time"`

	// API
	APIRateLimit int `yaml:"api_rate_limit"` // requests per minute per client IP
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		StoreDriver: DriverPostgres,
		SQLitePath:  "birthdays.db",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "postgres",
		DBName:    "birthdays",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		AWSRegion: "us-east-1",

		WebhookTimeout: 30 * time.Second,

		DeliveryChannels: []string{"log"},
		DiscoveryCron:    "0 0 * * *",
		DeliveryCron:     "* * * * *",
		RetryDelay:       30 * time.Minute,
		MaxRetries:       3,
		ClaimTTL:         10 * time.Minute,

		APIRateLimit: 100,
	}
}

// Load reads .env (if present), then CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envString("LOG_LEVEL", &c.LogLevel)
	envString("ENV", &c.Env)
	envString("STORE_DRIVER", &c.StoreDriver)
	envString("SQLITE_PATH", &c.SQLitePath)

	envString("DB_HOST", &c.DBHost)
	envString("DB_USER", &c.DBUser)
	envString("DB_PASSWORD", &c.DBPassword)
	envString("DB_NAME", &c.DBName)
	envString("DB_SSLMODE", &c.DBSSLMode)

	envString("REDIS_HOST", &c.RedisHost)
	envString("REDIS_PASSWORD", &c.RedisPassword)

	envString("AWS_REGION", &c.AWSRegion)
	envString("AWS_ENDPOINT", &c.AWSEndpoint)
	envString("SES_FROM_EMAIL", &c.SESFromEmail)
	envString("SNS_TOPIC_ARN", &c.SNSTopicARN)
	envString("SQS_QUEUE_URL", &c.SQSQueueURL)
	envString("WEBHOOK_URL", &c.WebhookURL)

	envString("DISCOVERY_CRON", &c.DiscoveryCron)
	envString("DELIVERY_CRON", &c.DeliveryCron)
	envString("SIMULATED_TIME", &c.SimulatedTime)

	if channels := os.Getenv("DELIVERY_CHANNELS"); channels != "" {
		c.DeliveryChannels = splitList(channels)
	}

	return errors.Join(
		envInt("PORT", &c.Port),
		envInt("DB_PORT", &c.DBPort),
		envInt("REDIS_PORT", &c.RedisPort),
		envInt("REDIS_DB", &c.RedisDB),
		envInt("MAX_RETRIES", &c.MaxRetries),
		envInt("API_RATE_LIMIT", &c.APIRateLimit),
		envBool("REDIS_ENABLED", &c.RedisEnabled),
		envDuration("WEBHOOK_TIMEOUT", &c.WebhookTimeout),
		envDuration("RETRY_DELAY", &c.RetryDelay),
		envDuration("CLAIM_TTL", &c.ClaimTTL),
	)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverSQLite {
		errs = append(errs, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", c.StoreDriver, DriverPostgres, DriverSQLite))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_RETRIES %d: must be positive", c.MaxRetries))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("invalid RETRY_DELAY %s: must be positive", c.RetryDelay))
	}
	if c.SimulatedTime != "" {
		if _, err := time.Parse(time.RFC3339, c.SimulatedTime); err != nil {
			errs = append(errs, fmt.Errorf("invalid SIMULATED_TIME: %w", err))
		}
	}
	if len(c.DeliveryChannels) == 0 {
		errs = append(errs, errors.New("DELIVERY_CHANNELS must name at least one channel"))
	}
	for _, ch := range c.DeliveryChannels {
		if !slices.Contains(KnownChannels, ch) {
			errs = append(errs, fmt.Errorf("unknown delivery channel %q", ch))
		}
	}
	if c.UsesChannel("ses") && c.SESFromEmail == "" {
		errs = append(errs, errors.New("channel ses requires SES_FROM_EMAIL"))
	}
	if c.UsesChannel("sns") && c.SNSTopicARN == "" {
		errs = append(errs, errors.New("channel sns requires SNS_TOPIC_ARN"))
	}
	if c.UsesChannel("sqs") && c.SQSQueueURL == "" {
		errs = append(errs, errors.New("channel sqs requires SQS_QUEUE_URL"))
	}
	if c.UsesChannel("webhook") && c.WebhookURL == "" {
		errs = append(errs, errors.New("channel webhook requires WEBHOOK_URL"))
	}

	return errors.Join(errs...)
}

// UsesChannel reports whether name is one of the configured delivery channels.
func (c *Config) UsesChannel(name string) bool {
	return slices.Contains(c.DeliveryChannels, name)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
