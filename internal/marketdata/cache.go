package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Key prefixes per data class.
const (
	historyKeyPrefix = "price:history:"
	volKeyPrefix     = "price:vol:"
	metricsKeyPrefix = "price:metrics:"
)

const lockStripes = 64

// CacheOptions tune retention and degradation behaviour.
type CacheOptions struct {
	HistoryHours     int
	MaxPoints        int
	MetricsTTL       time.Duration
	BreakerThreshold int
	BreakerCoolDown  time.Duration
}

// Cache stores compressed price-history series and running volatility
// statistics in the backing store. Every read and write passes through the
// circuit breaker; while the breaker is open the cache serves stale or
// empty data instead of touching the store.
type Cache struct {
	backend Backend
	breaker *Breaker
	opts    CacheOptions
	logger  zerolog.Logger

	// Writes to a single token's series and accumulator are serialized.
	locks [lockStripes]sync.Mutex

	// Last successfully derived metrics, served while the breaker is open.
	lastMetrics sync.Map

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCache constructs the market-data cache.
func NewCache(backend Backend, opts CacheOptions, logger zerolog.Logger) (*Cache, error) {
	if opts.HistoryHours <= 0 {
		opts.HistoryHours = 24
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = 2880
	}
	if opts.MetricsTTL <= 0 {
		opts.MetricsTTL = 5 * time.Minute
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}

	return &Cache{
		backend: backend,
		breaker: NewBreaker(opts.BreakerThreshold, opts.BreakerCoolDown),
		opts:    opts,
		logger:  logger.With().Str("component", "market_cache").Logger(),
		enc:     enc,
		dec:     dec,
	}, nil
}

// Breaker exposes the breaker for health reporting.
func (c *Cache) Breaker() *Breaker {
	return c.breaker
}

// Store appends a price point to the token's history and feeds the running
// volatility accumulator.
func (c *Cache) Store(ctx context.Context, mint string, point PricePoint) error {
	lock := c.stripe(mint)
	lock.Lock()
	defer lock.Unlock()

	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	history := c.loadHistory(ctx, mint)
	history = insertNewestFirst(history, point)
	history = c.trim(history)

	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	compressed := c.enc.EncodeAll(raw, nil)

	ttl := time.Duration(c.opts.HistoryHours) * time.Hour
	if err := c.backend.Set(ctx, historyKeyPrefix+mint, compressed, ttl); err != nil {
		c.breaker.Failure()
		return fmt.Errorf("store history: %w", err)
	}
	c.breaker.Success()

	if sample, ok := volatilitySample(point); ok {
		if err := c.recordVolatility(ctx, mint, sample); err != nil {
			c.logger.Warn().Err(err).Str("mint", mint).Msg("volatility accumulator update failed")
		}
	}
	return nil
}

// History returns the token's price points within the window, newest first.
// While the breaker is open it returns an empty series so callers can fall
// back to defaults.
func (c *Cache) History(ctx context.Context, mint string, hours int) ([]PricePoint, error) {
	if !c.breaker.Allow() {
		c.logger.Debug().Str("mint", mint).Msg("history served degraded: circuit open")
		return nil, nil
	}

	data, err := c.backend.Get(ctx, historyKeyPrefix+mint)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			c.breaker.Success()
			return nil, nil
		}
		c.breaker.Failure()
		return nil, fmt.Errorf("read history: %w", err)
	}
	c.breaker.Success()

	history, ok := c.decodeHistory(data)
	if !ok {
		// Corrupt or uncompressable payload counts as a miss, not a failure.
		return nil, nil
	}

	if hours <= 0 || hours > c.opts.HistoryHours {
		hours = c.opts.HistoryHours
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	out := history[:0:0]
	for _, p := range history {
		if p.Timestamp.Before(cutoff) {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

// AverageVolatility returns the running mean of the token's volatility
// samples. The bool reports whether any samples exist: a token whose
// candles never move averages to a genuine zero, which is not the same
// as having no data.
func (c *Cache) AverageVolatility(ctx context.Context, mint string) (decimal.Decimal, bool, error) {
	if !c.breaker.Allow() {
		return decimal.Zero, false, nil
	}
	data, err := c.backend.Get(ctx, volKeyPrefix+mint)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			c.breaker.Success()
			return decimal.Zero, false, nil
		}
		c.breaker.Failure()
		return decimal.Zero, false, fmt.Errorf("read volatility: %w", err)
	}
	c.breaker.Success()

	var acc volatilityAccumulator
	if err := json.Unmarshal(data, &acc); err != nil {
		return decimal.Zero, false, nil
	}
	return acc.average(), acc.Count > 0, nil
}

// Metrics returns derived token metrics, recomputed at most once per TTL.
// While the breaker is open the last successfully cached value is served if
// present, else a zero value.
func (c *Cache) Metrics(ctx context.Context, mint string) (TokenMetrics, error) {
	if c.breaker.Allow() {
		data, err := c.backend.Get(ctx, metricsKeyPrefix+mint)
		switch {
		case err == nil:
			c.breaker.Success()
			var metrics TokenMetrics
			if jsonErr := json.Unmarshal(data, &metrics); jsonErr == nil {
				c.lastMetrics.Store(mint, metrics)
				return metrics, nil
			}
		case errors.Is(err, ErrCacheMiss):
			c.breaker.Success()
		default:
			c.breaker.Failure()
		}
	}

	if c.breaker.Open() {
		if cached, ok := c.lastMetrics.Load(mint); ok {
			return cached.(TokenMetrics), nil
		}
		return TokenMetrics{}, nil
	}

	metrics, err := c.computeMetrics(ctx, mint)
	if err != nil {
		return TokenMetrics{}, err
	}
	c.lastMetrics.Store(mint, metrics)

	if raw, err := json.Marshal(metrics); err == nil && c.breaker.Allow() {
		if err := c.backend.Set(ctx, metricsKeyPrefix+mint, raw, c.opts.MetricsTTL); err != nil {
			c.breaker.Failure()
		} else {
			c.breaker.Success()
		}
	}
	return metrics, nil
}

func (c *Cache) computeMetrics(ctx context.Context, mint string) (TokenMetrics, error) {
	history, err := c.History(ctx, mint, 24)
	if err != nil {
		return TokenMetrics{}, err
	}
	if len(history) == 0 {
		return TokenMetrics{}, nil
	}

	newest := history[0]
	oldest := history[len(history)-1]

	volume := decimal.Zero
	for _, p := range history {
		volume = volume.Add(p.Volume)
	}

	change := decimal.Zero
	if !oldest.Close.IsZero() {
		change = newest.Close.Sub(oldest.Close).Div(oldest.Close).Mul(decimal.NewFromInt(100))
	}

	vol, _, err := c.AverageVolatility(ctx, mint)
	if err != nil {
		vol = decimal.Zero
	}

	return TokenMetrics{
		Price:          newest.Close,
		Volume24h:      volume,
		PriceChange24h: change,
		Volatility:     vol,
	}, nil
}

func (c *Cache) recordVolatility(ctx context.Context, mint string, sample decimal.Decimal) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	var acc volatilityAccumulator
	data, err := c.backend.Get(ctx, volKeyPrefix+mint)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &acc); jsonErr != nil {
			acc = volatilityAccumulator{}
		}
	case errors.Is(err, ErrCacheMiss):
	default:
		c.breaker.Failure()
		return fmt.Errorf("read volatility: %w", err)
	}

	acc.Sum = acc.Sum.Add(sample)
	acc.Count++

	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode volatility: %w", err)
	}
	if err := c.backend.Set(ctx, volKeyPrefix+mint, raw, 0); err != nil {
		c.breaker.Failure()
		return fmt.Errorf("store volatility: %w", err)
	}
	c.breaker.Success()
	return nil
}

func (c *Cache) loadHistory(ctx context.Context, mint string) []PricePoint {
	data, err := c.backend.Get(ctx, historyKeyPrefix+mint)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.breaker.Failure()
		}
		return nil
	}
	history, _ := c.decodeHistory(data)
	return history
}

func (c *Cache) decodeHistory(data []byte) ([]PricePoint, bool) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("history decompression failed, treating as miss")
		return nil, false
	}
	var history []PricePoint
	if err := json.Unmarshal(raw, &history); err != nil {
		c.logger.Warn().Err(err).Msg("history decode failed, treating as miss")
		return nil, false
	}
	return history, true
}

func (c *Cache) trim(history []PricePoint) []PricePoint {
	cutoff := time.Now().Add(-time.Duration(c.opts.HistoryHours) * time.Hour)
	n := len(history)
	for n > 0 && history[n-1].Timestamp.Before(cutoff) {
		n--
	}
	history = history[:n]
	if len(history) > c.opts.MaxPoints {
		history = history[:c.opts.MaxPoints]
	}
	return history
}

func (c *Cache) stripe(mint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(mint))
	return &c.locks[h.Sum32()%lockStripes]
}

func insertNewestFirst(history []PricePoint, point PricePoint) []PricePoint {
	idx := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.After(point.Timestamp)
	})
	history = append(history, PricePoint{})
	copy(history[idx+1:], history[idx:])
	history[idx] = point
	return history
}

// volatilitySample derives one realized-volatility observation from a
// candle: the magnitude of the open-to-close move relative to the open.
func volatilitySample(p PricePoint) (decimal.Decimal, bool) {
	if p.Open.IsZero() {
		return decimal.Zero, false
	}
	return p.Close.Sub(p.Open).Div(p.Open).Abs(), true
}
