package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "checkout-service/pkg/aws"

	"github.com/joho/godotenv"
)

// Backend and mode selectors.
const (
	LedgerPostgres = "postgres"
	LedgerDynamoDB = "dynamodb"

	RegistryLive = "live"
	RegistryFake = "fake"

	PaymentsRegistry = "registry"
	PaymentsStripe   = "stripe"
)

// Secrets Manager names read when AWS_USE_SECRETS=true.
const (
	SecretDBCredentials  = "checkout/DB_CREDENTIALS"
	SecretRegistryAPIKey = "checkout/REGISTRY_API_KEY"
	SecretStripeAPIKey   = "checkout/STRIPE_API_KEY"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Env         string
	Port        string
	ServiceName string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	LedgerBackend string
	DynamoTable   string

	// RedisURL enables idempotent checkout when set.
	RedisURL       string
	IdempotencyTTL time.Duration

	RegistryMode    string
	RegistryBaseURL string
	RegistryAPIKey  string
	RegistryTimeout time.Duration

	PaymentProvider string
	StripeAPIKey    string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	PollInterval   time.Duration
	MaxPolls       int

	OrderEventsTopicARN string
	SettlementQueueURL  string

	CloudWatchEnabled   bool
	CloudWatchLogGroup  string
	CloudWatchNamespace string

	RateLimitPerMinute int
	RateLimitBurst     int
	CORSAllowedOrigins []string

	AWSUseSecrets bool
}

// Load reads configuration from the environment (and a .env file when
// present), optionally overriding credentials from Secrets Manager.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()

	if cfg.AWSUseSecrets {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		ApplySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	return &Config{
		Env:         getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8095"),
		ServiceName: getEnv("SERVICE_NAME", "checkout-service"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", LedgerPostgres)),
		DynamoTable:   getEnv("DYNAMODB_LEDGER_TABLE", "local_orders"),

		RedisURL:       os.Getenv("REDIS_URL"),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		RegistryMode:    strings.ToLower(getEnv("REGISTRY_MODE", RegistryLive)),
		RegistryBaseURL: os.Getenv("REGISTRY_BASE_URL"),
		RegistryAPIKey:  os.Getenv("REGISTRY_API_KEY"),
		RegistryTimeout: getDuration("REGISTRY_TIMEOUT", 10*time.Second),

		PaymentProvider: strings.ToLower(getEnv("PAYMENT_PROVIDER", PaymentsRegistry)),
		StripeAPIKey:    os.Getenv("STRIPE_API_KEY"),

		RetryAttempts:  getInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay: getDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		PollInterval:   getDuration("PAYMENT_POLL_INTERVAL", 1500*time.Millisecond),
		MaxPolls:       getInt("PAYMENT_MAX_POLLS", 10),

		OrderEventsTopicARN: os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		SettlementQueueURL:  os.Getenv("PAYMENT_SETTLEMENT_QUEUE_URL"),

		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/checkout/services"),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", aws_pkg.DefaultMetricNamespace),

		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 20),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		AWSUseSecrets: os.Getenv("AWS_USE_SECRETS") == "true",
	}
}

// ApplySecrets overrides credentials with values found in Secrets Manager.
// Missing or unreadable secrets leave the env values in place.
func ApplySecrets(ctx context.Context, cfg *Config, sm aws_pkg.SecretGetter) {
	if dbjson, err := sm.GetSecret(ctx, SecretDBCredentials); err == nil && dbjson != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(dbjson), &m); err == nil {
			if v, ok := m["POSTGRES_USER"]; ok && v != "" {
				cfg.PostgresUser = v
			}
			if v, ok := m["POSTGRES_PASSWORD"]; ok && v != "" {
				cfg.PostgresPassword = v
			}
			if v, ok := m["POSTGRES_DB"]; ok && v != "" {
				cfg.PostgresDB = v
			}
			if v, ok := m["POSTGRES_HOST"]; ok && v != "" {
				cfg.PostgresHost = v
			}
			if v, ok := m["POSTGRES_PORT"]; ok && v != "" {
				cfg.PostgresPort = v
			}
		}
	}
	if v, err := sm.GetSecret(ctx, SecretRegistryAPIKey); err == nil && v != "" {
		cfg.RegistryAPIKey = v
	}
	if v, err := sm.GetSecret(ctx, SecretStripeAPIKey); err == nil && v != "" {
		cfg.StripeAPIKey = v
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerPostgres:
		if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
			return fmt.Errorf("database config incomplete")
		}
	case LedgerDynamoDB:
		if c.DynamoTable == "" {
			return fmt.Errorf("DYNAMODB_LEDGER_TABLE not set")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.RegistryMode {
	case RegistryFake:
	case RegistryLive:
		if c.RegistryBaseURL == "" {
			return fmt.Errorf("REGISTRY_BASE_URL not set")
		}
		if c.RegistryAPIKey == "" {
			return fmt.Errorf("REGISTRY_API_KEY not set")
		}
	default:
		return fmt.Errorf("unknown REGISTRY_MODE %q", c.RegistryMode)
	}

	switch c.PaymentProvider {
	case PaymentsRegistry:
	case PaymentsStripe:
		if c.StripeAPIKey == "" {
			return fmt.Errorf("STRIPE_API_KEY not set")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}

	if c.RetryAttempts < 1 || c.MaxPolls < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS and PAYMENT_MAX_POLLS must be positive")
	}
	return nil
}

// PostgresDSN builds the gorm postgres DSN.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
