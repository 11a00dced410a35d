package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoPriceData indicates the feed had no usable quote for a token after
// confidence filtering. It is distinct from a network failure.
var ErrNoPriceData = errors.New("pricing: no price data available")

// Confidence levels reported by the aggregation API, ordered weakest first.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// TokenPrice is a confidence-filtered quote for a single mint.
type TokenPrice struct {
	Mint       string
	Price      decimal.Decimal
	Confidence string
	Depth      decimal.Decimal
}

// Source retrieves spot prices for token mints.
type Source interface {
	GetPrices(ctx context.Context, mints []string) (map[string]TokenPrice, error)
	GetPrice(ctx context.Context, mint string) (TokenPrice, error)
}

// BatchError identifies the batch that exhausted its retry budget.
type BatchError struct {
	Batch int
	Mints []string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("pricing: batch %d (%s) failed: %v", e.Batch, strings.Join(e.Mints, ","), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func confidenceRank(level string) int {
	switch strings.ToLower(level) {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}
