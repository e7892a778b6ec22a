package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL         string
	RedisURL            string
	KafkaBrokers        string
	NatsURL             string
	JaegerEndpoint      string
	Port                string
	StoreDriver         string
	StripeSecretKey     string
	StripeWebhookSecret string
	PlatformFeePercent  decimal.Decimal
	DefaultCurrency     string
	StaleHoldAfter      time.Duration
	ReconcileInterval   time.Duration
	LockTTL             time.Duration
}

func Load() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		NatsURL:             getEnv("NATS_URL", "nats://localhost:4222"),
		JaegerEndpoint:      os.Getenv("JAEGER_ENDPOINT"),
		Port:                getEnv("PORT", "8084"),
		StoreDriver:         getEnv("STORE_DRIVER", "postgres"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PlatformFeePercent:  getDecimal("PLATFORM_FEE_PERCENT", decimal.NewFromInt(10)),
		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "usd"),
		StaleHoldAfter:      getDuration("STALE_HOLD_AFTER", 72*time.Hour),
		ReconcileInterval:   getDuration("RECONCILE_INTERVAL", 15*time.Minute),
		LockTTL:             getDuration("LOCK_TTL", 30*time.Second),
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(os.Getenv(key))
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return fallback
	}
	return d
}
