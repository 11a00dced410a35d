package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one OHLCV sample for a token. Immutable once stored;
// series are ordered newest first.
type PricePoint struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// TokenMetrics is derived from recent price history and cached with a
// short TTL.
type TokenMetrics struct {
	Price          decimal.Decimal `json:"price"`
	Volume24h      decimal.Decimal `json:"volume_24h"`
	PriceChange24h decimal.Decimal `json:"price_change_24h"`
	Volatility     decimal.Decimal `json:"volatility"`
}

// volatilityAccumulator is a running statistic per token. The count only
// increases; the average is sum/count.
type volatilityAccumulator struct {
	Sum   decimal.Decimal `json:"sum"`
	Count int64           `json:"count"`
}

func (a volatilityAccumulator) average() decimal.Decimal {
	if a.Count == 0 {
		return decimal.Zero
	}
	return a.Sum.Div(decimal.NewFromInt(a.Count))
}
