package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}

	if cfg.Pricing.RateLimit != 600 || cfg.Pricing.RateWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d per %s", cfg.Pricing.RateLimit, cfg.Pricing.RateWindow)
	}
	if cfg.Pricing.BatchSize != 100 {
		t.Fatalf("batch size default should be 100, got %d", cfg.Pricing.BatchSize)
	}
	if cfg.Cache.BreakerThreshold != 4 || cfg.Cache.BreakerCoolDown != 60*time.Second {
		t.Fatalf("unexpected breaker defaults: %d / %s", cfg.Cache.BreakerThreshold, cfg.Cache.BreakerCoolDown)
	}
	if cfg.Executor.StopLossThreshold != 0.05 {
		t.Fatalf("stop loss default should be 0.05, got %v", cfg.Executor.StopLossThreshold)
	}
	if len(cfg.Routing.Venues) != 3 {
		t.Fatalf("expected 3 default venues, got %v", cfg.Routing.Venues)
	}
	if cfg.Lock.TTL != 30*time.Second {
		t.Fatalf("lock TTL default should be 30s, got %s", cfg.Lock.TTL)
	}
	if cfg.Cache.SampleInterval != 30*time.Second {
		t.Fatalf("sample interval default should be 30s, got %s", cfg.Cache.SampleInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
pricing:
  rate_limit: 120
  rate_window: 30s
routing:
  venues:
    - Orca
    - Raydium
  top_n: 2
arbitrage:
  enabled: true
  pairs:
    - BaseMint/QuoteMint
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Pricing.RateLimit != 120 {
		t.Fatalf("rate_limit should be 120, got %d", cfg.Pricing.RateLimit)
	}
	if cfg.Pricing.RateWindow != 30*time.Second {
		t.Fatalf("rate_window should decode to 30s, got %s", cfg.Pricing.RateWindow)
	}
	if len(cfg.Routing.Venues) != 2 || cfg.Routing.TopN != 2 {
		t.Fatalf("routing overrides not applied: %+v", cfg.Routing)
	}
	if !cfg.Arbitrage.Enabled || len(cfg.Arbitrage.Pairs) != 1 {
		t.Fatalf("arbitrage overrides not applied: %+v", cfg.Arbitrage)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate limit", func(c *Config) { c.Pricing.RateLimit = 0 }},
		{"oversized batch", func(c *Config) { c.Pricing.BatchSize = 101 }},
		{"breaker threshold too low", func(c *Config) { c.Cache.BreakerThreshold = 2 }},
		{"breaker threshold too high", func(c *Config) { c.Cache.BreakerThreshold = 6 }},
		{"health threshold over one", func(c *Config) { c.Routing.HealthThreshold = 1.5 }},
		{"no venues", func(c *Config) { c.Routing.Venues = nil }},
		{"stop loss out of range", func(c *Config) { c.Executor.StopLossThreshold = 1 }},
		{"zero risk tick", func(c *Config) { c.Risk.TickInterval = 0 }},
		{"zero sample interval", func(c *Config) { c.Cache.SampleInterval = 0 }},
		{"arbitrage without pairs", func(c *Config) { c.Arbitrage.Enabled = true; c.Arbitrage.Pairs = nil }},
		{"telegram without token", func(c *Config) { c.Alerting.Telegram.Enabled = true; c.Alerting.Telegram.ChatID = "chat" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("expected config default 500, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Fatalf("override should win, got %d", got)
	}
}
