package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"soltrader/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Lock      LockConfig      `mapstructure:"lock"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL trade journal.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AlertRetention  time.Duration `mapstructure:"alert_retention"`
}

// RedisConfig covers the cache backing store and pair locks.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PricingConfig parameterises the rate-limited price client.
type PricingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	BatchSize      int           `mapstructure:"batch_size"`
	MinConfidence  string        `mapstructure:"min_confidence"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
}

// CacheConfig tunes the market-data cache and its circuit breaker.
type CacheConfig struct {
	HistoryHours      int           `mapstructure:"history_hours"`
	MaxPoints         int           `mapstructure:"max_points"`
	MetricsTTL        time.Duration `mapstructure:"metrics_ttl"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold"`
	BreakerCoolDown   time.Duration `mapstructure:"breaker_cooldown"`
	DefaultVolatility float64       `mapstructure:"default_volatility"`
	VolSensitivity    float64       `mapstructure:"vol_sensitivity"`
	MinSizeFactor     float64       `mapstructure:"min_size_factor"`
	SampleInterval    time.Duration `mapstructure:"sample_interval"`
	WatchMints        []string      `mapstructure:"watch_mints"`
}

// RoutingConfig governs route selection across venues.
type RoutingConfig struct {
	QuoteURL        string        `mapstructure:"quote_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	Venues          []string      `mapstructure:"venues"`
	HealthAlpha     float64       `mapstructure:"health_alpha"`
	HealthThreshold float64       `mapstructure:"health_threshold"`
	TopN            int           `mapstructure:"top_n"`
	SlippageBps     int           `mapstructure:"slippage_bps"`
}

// ArbitrageConfig governs the periodic cross-venue scan.
type ArbitrageConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	Pairs        []string      `mapstructure:"pairs"`
	Notional     uint64        `mapstructure:"notional"`
	MinProfit    float64       `mapstructure:"min_profit"`
	// Execute enters a position on the buy leg of each signal instead of
	// only notifying.
	Execute bool `mapstructure:"execute"`
}

// ExecutorConfig covers transaction build, submit, and confirmation.
type ExecutorConfig struct {
	SwapURL           string        `mapstructure:"swap_url"`
	RPCURL            string        `mapstructure:"rpc_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	StopLossThreshold float64       `mapstructure:"stop_loss_threshold"`
	HistorySize       int           `mapstructure:"history_size"`
	PrivateKey        string        `mapstructure:"private_key"`
}

// RiskConfig governs the stop-loss monitoring loop.
type RiskConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	AlertAfterFailures int           `mapstructure:"alert_after_failures"`
}

// LockConfig governs the cross-process pair lock.
type LockConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notifier.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SOLTRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "soltrader")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.alert_retention", "720h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("pricing.base_url", "https://api.jup.ag/price/v2")
	v.SetDefault("pricing.request_timeout", "10s")
	v.SetDefault("pricing.user_agent", "soltrader/1.0")
	v.SetDefault("pricing.batch_size", 100)
	v.SetDefault("pricing.min_confidence", "medium")
	v.SetDefault("pricing.max_retries", 5)
	v.SetDefault("pricing.base_delay", "500ms")
	v.SetDefault("pricing.rate_limit", 600)
	v.SetDefault("pricing.rate_window", "1m")

	v.SetDefault("cache.history_hours", 24)
	v.SetDefault("cache.max_points", 2880)
	v.SetDefault("cache.metrics_ttl", "300s")
	v.SetDefault("cache.breaker_threshold", 4)
	v.SetDefault("cache.breaker_cooldown", "60s")
	v.SetDefault("cache.default_volatility", 0.02)
	v.SetDefault("cache.vol_sensitivity", 4.0)
	v.SetDefault("cache.min_size_factor", 0.1)
	v.SetDefault("cache.sample_interval", "30s")

	v.SetDefault("routing.quote_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("routing.request_timeout", "10s")
	v.SetDefault("routing.venues", []string{"Orca", "Raydium", "Meteora"})
	v.SetDefault("routing.health_alpha", 0.2)
	v.SetDefault("routing.health_threshold", 0.8)
	v.SetDefault("routing.top_n", 3)
	v.SetDefault("routing.slippage_bps", 50)

	v.SetDefault("arbitrage.enabled", false)
	v.SetDefault("arbitrage.scan_interval", "30s")
	v.SetDefault("arbitrage.notional", uint64(1_000_000_000))
	v.SetDefault("arbitrage.min_profit", 0.005)

	v.SetDefault("executor.swap_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("executor.request_timeout", "15s")
	v.SetDefault("executor.confirm_timeout", "60s")
	v.SetDefault("executor.poll_interval", "2s")
	v.SetDefault("executor.stop_loss_threshold", 0.05)
	v.SetDefault("executor.history_size", 1000)

	v.SetDefault("risk.tick_interval", "15s")
	v.SetDefault("risk.alert_after_failures", 3)

	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.prefix", "trade:lock:")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Pricing.RateLimit <= 0 {
		return fmt.Errorf("pricing.rate_limit must be greater than zero")
	}
	if c.Pricing.BatchSize <= 0 || c.Pricing.BatchSize > 100 {
		return fmt.Errorf("pricing.batch_size must be in (0, 100]")
	}
	if c.Cache.BreakerThreshold < 3 || c.Cache.BreakerThreshold > 5 {
		return fmt.Errorf("cache.breaker_threshold must be between 3 and 5")
	}
	if c.Routing.HealthThreshold <= 0 || c.Routing.HealthThreshold > 1 {
		return fmt.Errorf("routing.health_threshold must be in (0, 1]")
	}
	if len(c.Routing.Venues) == 0 {
		return fmt.Errorf("routing.venues must not be empty")
	}
	if c.Executor.StopLossThreshold <= 0 || c.Executor.StopLossThreshold >= 1 {
		return fmt.Errorf("executor.stop_loss_threshold must be in (0, 1)")
	}
	if c.Risk.TickInterval <= 0 {
		return fmt.Errorf("risk.tick_interval must be greater than zero")
	}
	if c.Cache.SampleInterval <= 0 {
		return fmt.Errorf("cache.sample_interval must be greater than zero")
	}
	if c.Arbitrage.Enabled {
		if len(c.Arbitrage.Pairs) == 0 {
			return fmt.Errorf("arbitrage.pairs must not be empty when arbitrage is enabled")
		}
		if c.Arbitrage.MinProfit < 0 {
			return fmt.Errorf("arbitrage.min_profit cannot be negative")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
