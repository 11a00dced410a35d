package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RequestKind distinguishes market from limit-style routing requests.
type RequestKind string

const (
	KindMarket RequestKind = "market"
	KindLimit  RequestKind = "limit"
)

// RouteRequest describes a swap to route.
type RouteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
	Kind        RequestKind
}

// RouteLeg is one venue hop within a route.
type RouteLeg struct {
	Venue      string
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	FeeAmount  uint64
}

// RouteQuote is one candidate path across a venue.
type RouteQuote struct {
	Venue                string
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	PriceImpactPct       decimal.Decimal
	FeeAmount            uint64
	Legs                 []RouteLeg

	// Raw carries the venue's original quote payload for the execution API.
	Raw json.RawMessage
}

// EffectiveOutput is the output amount after price impact and fees; routes
// are ranked by it.
func (q *RouteQuote) EffectiveOutput() decimal.Decimal {
	out := decimal.NewFromInt(int64(q.OutAmount))
	impact := q.PriceImpactPct.Div(decimal.NewFromInt(100))
	effective := out.Mul(decimal.NewFromInt(1).Sub(impact))
	return effective.Sub(decimal.NewFromInt(int64(q.FeeAmount)))
}

// RouteSet is a ranked set of candidate routes; Best is the primary
// recommendation.
type RouteSet struct {
	Best         *RouteQuote
	Alternatives []*RouteQuote
}

// ValidationError reports an invalid routing request. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("routing: invalid %s: %s", e.Field, e.Reason)
}

// Quoter obtains a quote from a single liquidity venue.
type Quoter interface {
	Quote(ctx context.Context, venue string, req RouteRequest) (*RouteQuote, error)
}

// Router computes ranked swap routes.
type Router interface {
	FindBestRoute(ctx context.Context, req RouteRequest) (*RouteSet, error)
}
