package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "PLATFORM_FEE_PERCENT", "DEFAULT_CURRENCY", "STALE_HOLD_AFTER", "LOCK_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8084" {
		t.Errorf("Port = %q, want 8084", cfg.Port)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q, want postgres", cfg.StoreDriver)
	}
	if !cfg.PlatformFeePercent.Equal(decimal.NewFromInt(10)) {
		t.Errorf("PlatformFeePercent = %s, want 10", cfg.PlatformFeePercent)
	}
	if cfg.DefaultCurrency != "usd" {
		t.Errorf("DefaultCurrency = %q, want usd", cfg.DefaultCurrency)
	}
	if cfg.StaleHoldAfter != 72*time.Hour {
		t.Errorf("StaleHoldAfter = %s, want 72h", cfg.StaleHoldAfter)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Errorf("LockTTL = %s, want 30s", cfg.LockTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PLATFORM_FEE_PERCENT", "12.5")
	t.Setenv("STALE_HOLD_AFTER", "6h")

	cfg := Load()
	if cfg.Port != "9000" || cfg.StoreDriver != "memory" {
		t.Errorf("got Port=%q StoreDriver=%q", cfg.Port, cfg.StoreDriver)
	}
	if !cfg.PlatformFeePercent.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("PlatformFeePercent = %s, want 12.5", cfg.PlatformFeePercent)
	}
	if cfg.StaleHoldAfter != 6*time.Hour {
		t.Errorf("StaleHoldAfter = %s, want 6h", cfg.StaleHoldAfter)
	}
}

func TestLoadRejectsInvalidFee(t *testing.T) {
	for _, v := range []string{"-1", "101", "ten"} {
		t.Setenv("PLATFORM_FEE_PERCENT", v)
		if cfg := Load(); !cfg.PlatformFeePercent.Equal(decimal.NewFromInt(10)) {
			t.Errorf("PLATFORM_FEE_PERCENT=%s gave %s, want fallback 10", v, cfg.PlatformFeePercent)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Config{StoreDriver: "memory", StripeSecretKey: "sk_test", StripeWebhookSecret: "whsec"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without url", func(c *Config) { c.StoreDriver = "postgres" }},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }},
		{"missing secret key", func(c *Config) { c.StripeSecretKey = "" }},
		{"missing webhook secret", func(c *Config) { c.StripeWebhookSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
