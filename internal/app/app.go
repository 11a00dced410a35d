package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/alerting"
	"soltrader/internal/arbitrage"
	"soltrader/internal/config"
	"soltrader/internal/executor"
	"soltrader/internal/lock"
	"soltrader/internal/marketdata"
	"soltrader/internal/position"
	"soltrader/internal/pricing"
	"soltrader/internal/risk"
	"soltrader/internal/routing"
	"soltrader/internal/scheduler"
	"soltrader/internal/service"
	"soltrader/internal/signer"
	"soltrader/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
}

func (a *App) newPriceClient() *pricing.Client {
	cfg := a.Config.Pricing
	return pricing.NewClient(pricing.Options{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.RequestTimeout,
		UserAgent:     cfg.UserAgent,
		BatchSize:     cfg.BatchSize,
		MinConfidence: cfg.MinConfidence,
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.BaseDelay,
		RateLimit:     cfg.RateLimit,
		RateWindow:    cfg.RateWindow,
	}, a.Logger)
}

func (a *App) newCache(client *redis.Client) (*marketdata.Cache, error) {
	cfg := a.Config.Cache
	return marketdata.NewCache(marketdata.NewRedisBackend(client), marketdata.CacheOptions{
		HistoryHours:     cfg.HistoryHours,
		MaxPoints:        cfg.MaxPoints,
		MetricsTTL:       cfg.MetricsTTL,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCoolDown:  cfg.BreakerCoolDown,
	}, a.Logger)
}

func (a *App) newVolatilityManager(cache *marketdata.Cache) *marketdata.VolatilityManager {
	cfg := a.Config.Cache
	return marketdata.NewVolatilityManager(cache, marketdata.VolatilityOptions{
		DefaultVolatility: decimal.NewFromFloat(cfg.DefaultVolatility),
		Sensitivity:       decimal.NewFromFloat(cfg.VolSensitivity),
		MinFactor:         decimal.NewFromFloat(cfg.MinSizeFactor),
	}, a.Logger)
}

func (a *App) newSelector(prices pricing.Source, vol *marketdata.VolatilityManager, health *routing.HealthChecker, quoter routing.Quoter) *routing.Selector {
	cfg := a.Config.Routing
	return routing.NewSelector(prices, vol, health, quoter, routing.SelectorOptions{
		Venues: cfg.Venues,
		TopN:   cfg.TopN,
	}, a.Logger)
}

func (a *App) newQuoter() *routing.QuoteClient {
	cfg := a.Config.Routing
	return routing.NewQuoteClient(routing.QuoteOptions{
		BaseURL:   cfg.QuoteURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: a.Config.Pricing.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier(store *storage.Store) alerting.Notifier {
	var fan alerting.Multi
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		fan = append(fan, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if store != nil {
		fan = append(fan, &alertArchiver{store: store, logger: a.Logger})
	}
	if len(fan) == 0 {
		return nil
	}
	return fan
}

// alertArchiver persists emitted alerts for later auditing.
type alertArchiver struct {
	store  *storage.Store
	logger zerolog.Logger
}

func (a *alertArchiver) Notify(ctx context.Context, note alerting.Notification) error {
	_, err := a.store.InsertRiskAlert(ctx, storage.RiskAlertRecord{
		Kind:       string(note.Kind),
		Mint:       note.Mint,
		EntryPrice: note.EntryPrice,
		MarkPrice:  note.MarkPrice,
		ChangePct:  note.ChangePct,
		Detail:     note.Detail,
	})
	if err != nil {
		return fmt.Errorf("archive alert: %w", err)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// buildService assembles the full trading stack. The returned cleanup
// closes the store and the Redis client and must be called even when the
// service is short-lived.
func (a *App) buildService(ctx context.Context) (*service.Service, func(), error) {
	if a.Config.Executor.PrivateKey == "" {
		return nil, nil, errors.New("executor.private_key is required to trade")
	}
	walletSigner, err := signer.NewLocalSignerFromBase58(a.Config.Executor.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load signer: %w", err)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; trade journal disabled")
	}
	if store != nil && a.Config.Database.AlertRetention > 0 {
		cutoff := time.Now().Add(-a.Config.Database.AlertRetention)
		purged, err := store.PurgeAlertsBefore(ctx, cutoff)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("failed to purge expired risk alerts")
		} else if purged > 0 {
			a.Logger.Info().Int64("purged", purged).Msg("purged expired risk alerts")
		}
	}

	redisClient := a.newRedis()
	cleanup := func() {
		redisClient.Close()
		if closeStore != nil {
			closeStore()
		}
	}

	cache, err := a.newCache(redisClient)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	vol := a.newVolatilityManager(cache)
	prices := a.newPriceClient()
	health := routing.NewHealthChecker(a.Config.Routing.HealthAlpha, a.Config.Routing.HealthThreshold)
	quoter := a.newQuoter()
	selector := a.newSelector(prices, vol, health, quoter)

	swapClient := executor.NewSwapClient(executor.SwapClientOptions{
		BaseURL:   a.Config.Executor.SwapURL,
		Timeout:   a.Config.Executor.RequestTimeout,
		UserAgent: a.Config.Pricing.UserAgent,
	}, a.Logger)
	ledger := executor.NewRPCClient(a.Config.Executor.RPCURL, a.Config.Executor.RequestTimeout, a.Logger)

	book := position.NewBook()

	var journal executor.Journal
	if store != nil {
		journal = store
	}

	exec := executor.New(swapClient, ledger, walletSigner, selector, book, journal, executor.Options{
		StopLossThreshold: decimal.NewFromFloat(a.Config.Executor.StopLossThreshold),
		ConfirmTimeout:    a.Config.Executor.ConfirmTimeout,
		PollInterval:      a.Config.Executor.PollInterval,
		HistorySize:       a.Config.Executor.HistorySize,
	}, a.Logger)

	notifier := a.newNotifier(store)

	riskMgr := risk.NewManager(book, cache, exec, notifier, risk.Options{
		AlertAfterFailures: a.Config.Risk.AlertAfterFailures,
	}, a.Logger)

	riskSched := scheduler.New(scheduler.Options{
		Interval: a.Config.Risk.TickInterval,
		Name:     "risk_scheduler",
	}, a.Logger)

	var (
		detector *arbitrage.Detector
		arbSched *scheduler.Scheduler
	)
	if a.Config.Arbitrage.Enabled {
		detector = arbitrage.NewDetector(quoter, health, arbitrage.Options{
			Venues:      a.Config.Routing.Venues,
			Notional:    a.Config.Arbitrage.Notional,
			MinProfit:   decimal.NewFromFloat(a.Config.Arbitrage.MinProfit),
			SlippageBps: a.Config.Routing.SlippageBps,
		}, a.Logger)
		arbSched = scheduler.New(scheduler.Options{
			Interval: a.Config.Arbitrage.ScanInterval,
			Name:     "arbitrage_scheduler",
		}, a.Logger)
	}

	pairLock := lock.New(redisClient, a.Config.Lock.TTL, a.Config.Lock.Prefix, a.Logger)

	sampler := a.newSampler(prices, cache, book)
	sampleSched := scheduler.New(scheduler.Options{
		Interval: a.Config.Cache.SampleInterval,
		Name:     "market_sampler",
	}, a.Logger)

	svc, err := service.New(a.Config, selector, exec, riskMgr, detector, pairLock, riskSched, arbSched, sampler, sampleSched, notifier, a.Logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// newSampler watches the configured mints, the arbitrage pairs, and
// whatever positions are currently open.
func (a *App) newSampler(prices pricing.Source, cache *marketdata.Cache, book *position.Book) *marketdata.Sampler {
	watch := append([]string{}, a.Config.Cache.WatchMints...)
	if pairs, err := service.ParsePairs(a.Config.Arbitrage.Pairs); err == nil {
		for _, pair := range pairs {
			watch = append(watch, pair.Base, pair.Quote)
		}
	}
	held := func() []string {
		positions := book.List()
		mints := make([]string, 0, len(positions))
		for _, pos := range positions {
			mints = append(mints, pos.Mint)
		}
		return mints
	}
	return marketdata.NewSampler(prices, cache, held, marketdata.SamplerOptions{WatchMints: watch}, a.Logger)
}

// Run executes the long-running trading service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	a.Logger.Info().Msg("starting trading service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("trading service stopped")
	return nil
}

// validateMints rejects addresses that cannot be token mints before any
// network traffic happens.
func validateMints(mints ...string) error {
	for _, mint := range mints {
		if !signer.ValidPubkey(mint) {
			return fmt.Errorf("invalid token mint %q", mint)
		}
	}
	return nil
}

// QuoteOptions configure the one-shot quote command.
type QuoteOptions struct {
	InputMint  string
	OutputMint string
	Amount     uint64
}

// TradeOptions configure the one-shot trade command.
type TradeOptions struct {
	InputMint  string
	OutputMint string
	Amount     uint64
}

// ExportOptions hold parameters for exporting the trade journal.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}
