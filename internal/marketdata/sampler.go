package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/pricing"
)

// SamplerOptions tune the market-data sampling tick.
type SamplerOptions struct {
	// WatchMints are always sampled, independent of open positions.
	WatchMints []string
}

// Sampler feeds the cache on a schedule: each tick fetches spot prices
// for the watched mints and appends one candle per mint, with the
// previous tick's price as the open. The stop-loss monitor and the
// position sizer read what the sampler writes.
type Sampler struct {
	source pricing.Source
	cache  *Cache
	extra  func() []string
	opts   SamplerOptions
	logger zerolog.Logger

	mu   sync.Mutex
	last map[string]decimal.Decimal
}

// NewSampler constructs a sampler. extra supplies mints to watch beyond
// the static list, typically the mints of currently open positions; nil
// disables it.
func NewSampler(source pricing.Source, cache *Cache, extra func() []string, opts SamplerOptions, logger zerolog.Logger) *Sampler {
	return &Sampler{
		source: source,
		cache:  cache,
		extra:  extra,
		opts:   opts,
		logger: logger.With().Str("component", "market_sampler").Logger(),
		last:   make(map[string]decimal.Decimal),
	}
}

// Tick samples every watched mint once. A mint the feed has no quote for
// is skipped this round; a store failure on one mint does not stop the
// others.
func (s *Sampler) Tick(ctx context.Context, now time.Time) error {
	mints := s.watchSet()
	if len(mints) == 0 {
		return nil
	}

	prices, err := s.source.GetPrices(ctx, mints)
	if err != nil {
		return fmt.Errorf("sample prices: %w", err)
	}

	stored := 0
	for _, mint := range mints {
		quote, ok := prices[mint]
		if !ok || quote.Price.IsZero() {
			continue
		}
		if err := s.cache.Store(ctx, mint, s.candle(mint, quote.Price, now)); err != nil {
			s.logger.Warn().Err(err).Str("mint", mint).Msg("price sample not stored")
			continue
		}
		stored++
	}
	s.logger.Debug().Int("watched", len(mints)).Int("stored", stored).Msg("market data sampled")
	return nil
}

func (s *Sampler) watchSet() []string {
	seen := make(map[string]struct{})
	var mints []string
	add := func(mint string) {
		if mint == "" {
			return
		}
		if _, ok := seen[mint]; ok {
			return
		}
		seen[mint] = struct{}{}
		mints = append(mints, mint)
	}

	for _, mint := range s.opts.WatchMints {
		add(mint)
	}
	if s.extra != nil {
		for _, mint := range s.extra() {
			add(mint)
		}
	}
	sort.Strings(mints)
	return mints
}

// candle folds a spot quote into an OHLC point: the previous tick's price
// opens the candle and the current one closes it. The first sighting of a
// mint yields a flat candle.
func (s *Sampler) candle(mint string, price decimal.Decimal, now time.Time) PricePoint {
	s.mu.Lock()
	open, ok := s.last[mint]
	s.last[mint] = price
	s.mu.Unlock()
	if !ok || open.IsZero() {
		open = price
	}

	high, low := open, open
	if price.GreaterThan(high) {
		high = price
	}
	if price.LessThan(low) {
		low = price
	}

	return PricePoint{
		Open:  open,
		High:  high,
		Low:   low,
		Close: price,
		// Spot feeds carry no traded volume.
		Volume:    decimal.Zero,
		Timestamp: now,
	}
}
