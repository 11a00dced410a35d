package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soltrader/internal/pricing"
)

type fakeSource struct {
	prices map[string]pricing.TokenPrice
	err    error
	calls  [][]string
}

func (f *fakeSource) GetPrices(_ context.Context, mints []string) (map[string]pricing.TokenPrice, error) {
	f.calls = append(f.calls, mints)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]pricing.TokenPrice, len(mints))
	for _, mint := range mints {
		if quote, ok := f.prices[mint]; ok {
			out[mint] = quote
		}
	}
	return out, nil
}

func (f *fakeSource) GetPrice(ctx context.Context, mint string) (pricing.TokenPrice, error) {
	prices, err := f.GetPrices(ctx, []string{mint})
	if err != nil {
		return pricing.TokenPrice{}, err
	}
	return prices[mint], nil
}

func (f *fakeSource) setPrice(mint string, price float64) {
	if f.prices == nil {
		f.prices = make(map[string]pricing.TokenPrice)
	}
	f.prices[mint] = pricing.TokenPrice{Mint: mint, Price: decimal.NewFromFloat(price)}
}

func TestSamplerBuildsCandlesAcrossTicks(t *testing.T) {
	cache := newTestCache(t, newMemBackend())
	source := &fakeSource{}
	source.setPrice("MintA", 10)

	sampler := NewSampler(source, cache, nil, SamplerOptions{WatchMints: []string{"MintA"}}, zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, sampler.Tick(ctx, now.Add(-time.Minute)))
	source.setPrice("MintA", 12)
	require.NoError(t, sampler.Tick(ctx, now))

	history, err := cache.History(ctx, "MintA", 24)
	require.NoError(t, err)
	require.Len(t, history, 2)

	newest, oldest := history[0], history[1]
	assert.True(t, newest.Open.Equal(decimal.NewFromInt(10)), "candle opens at the previous tick's price")
	assert.True(t, newest.Close.Equal(decimal.NewFromInt(12)))
	assert.True(t, newest.High.Equal(decimal.NewFromInt(12)))
	assert.True(t, newest.Low.Equal(decimal.NewFromInt(10)))
	assert.True(t, oldest.Open.Equal(oldest.Close), "first sighting yields a flat candle")

	// Samples 0 and 0.2 average to 0.1.
	vol, ok, err := cache.AverageVolatility(ctx, "MintA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, vol.Equal(decimal.NewFromFloat(0.1)), "got %s", vol)

	metrics, err := cache.Metrics(ctx, "MintA")
	require.NoError(t, err)
	assert.True(t, metrics.Price.Equal(decimal.NewFromInt(12)))
}

func TestSamplerMergesWatchSet(t *testing.T) {
	cache := newTestCache(t, newMemBackend())
	source := &fakeSource{}
	source.setPrice("MintA", 1)
	source.setPrice("MintB", 2)

	extra := func() []string { return []string{"MintB", "MintA", ""} }
	sampler := NewSampler(source, cache, extra, SamplerOptions{WatchMints: []string{"MintA"}}, zerolog.Nop())

	require.NoError(t, sampler.Tick(context.Background(), time.Now()))
	require.Len(t, source.calls, 1)
	assert.Equal(t, []string{"MintA", "MintB"}, source.calls[0], "mints are deduplicated and ordered")
}

func TestSamplerEmptyWatchSetSkipsFeed(t *testing.T) {
	cache := newTestCache(t, newMemBackend())
	source := &fakeSource{}

	sampler := NewSampler(source, cache, nil, SamplerOptions{}, zerolog.Nop())
	require.NoError(t, sampler.Tick(context.Background(), time.Now()))
	assert.Empty(t, source.calls, "no watched mints, no feed call")
}

func TestSamplerFeedErrorSurfaces(t *testing.T) {
	cache := newTestCache(t, newMemBackend())
	source := &fakeSource{err: errors.New("feed down")}

	sampler := NewSampler(source, cache, nil, SamplerOptions{WatchMints: []string{"MintA"}}, zerolog.Nop())
	err := sampler.Tick(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorContains(t, err, "sample prices")
}

func TestSamplerSkipsMintsWithoutQuotes(t *testing.T) {
	cache := newTestCache(t, newMemBackend())
	source := &fakeSource{}
	source.setPrice("MintA", 10)

	sampler := NewSampler(source, cache, nil, SamplerOptions{WatchMints: []string{"MintA", "MintB"}}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, sampler.Tick(ctx, time.Now()))

	history, err := cache.History(ctx, "MintB", 24)
	require.NoError(t, err)
	assert.Empty(t, history, "a mint the feed dropped stores nothing")
}
