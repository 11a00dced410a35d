package marketdata

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// VolatilityOptions tune position-size adjustment.
type VolatilityOptions struct {
	// DefaultVolatility is assumed when no samples exist yet or the cache
	// is degraded.
	DefaultVolatility decimal.Decimal
	// Sensitivity scales how strongly volatility shrinks positions.
	Sensitivity decimal.Decimal
	// MinFactor floors the adjustment so a position never collapses to zero.
	MinFactor decimal.Decimal
}

// VolatilityManager shrinks position sizes as realized volatility rises.
// The adjustment is monotonic: higher volatility never yields a larger
// adjusted amount for the same base.
type VolatilityManager struct {
	cache  *Cache
	opts   VolatilityOptions
	logger zerolog.Logger
}

// NewVolatilityManager constructs a volatility-based position sizer.
func NewVolatilityManager(cache *Cache, opts VolatilityOptions, logger zerolog.Logger) *VolatilityManager {
	if opts.DefaultVolatility.IsZero() {
		opts.DefaultVolatility = decimal.NewFromFloat(0.02)
	}
	if opts.Sensitivity.IsZero() {
		opts.Sensitivity = decimal.NewFromInt(4)
	}
	if opts.MinFactor.IsZero() {
		opts.MinFactor = decimal.NewFromFloat(0.1)
	}
	return &VolatilityManager{
		cache:  cache,
		opts:   opts,
		logger: logger.With().Str("component", "volatility_manager").Logger(),
	}
}

// AdjustPosition scales a base amount by the token's volatility factor.
// The default volatility applies only when no samples exist or the cache
// is degraded; a token that genuinely never moves keeps its full size.
func (m *VolatilityManager) AdjustPosition(ctx context.Context, base uint64, mint string) uint64 {
	vol, ok, err := m.cache.AverageVolatility(ctx, mint)
	if err != nil || !ok {
		vol = m.opts.DefaultVolatility
	}

	factor := m.Factor(vol)
	adjusted := decimal.NewFromInt(int64(base)).Mul(factor).Floor()
	m.logger.Debug().Str("mint", mint).Uint64("base", base).Str("factor", factor.String()).Msg("position size adjusted")
	return uint64(adjusted.IntPart())
}

// Factor maps average volatility to a size multiplier in (0, 1]:
// 1 / (1 + sensitivity * volatility), floored at MinFactor.
func (m *VolatilityManager) Factor(volatility decimal.Decimal) decimal.Decimal {
	if volatility.IsNegative() {
		volatility = decimal.Zero
	}
	one := decimal.NewFromInt(1)
	factor := one.Div(one.Add(m.opts.Sensitivity.Mul(volatility)))
	if factor.LessThan(m.opts.MinFactor) {
		return m.opts.MinFactor
	}
	return factor
}
