package arbitrage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/routing"
)

// Pair names the two mints being scanned.
type Pair struct {
	Base  string
	Quote string
}

// Signal is raised when a round trip across two venues clears the profit
// threshold.
type Signal struct {
	Pair        Pair
	BuyVenue    string
	SellVenue   string
	InAmount    uint64
	ReturnedAmt uint64
	ProfitRatio decimal.Decimal
	ObservedAt  time.Time
}

// Options tune the detector.
type Options struct {
	Venues      []string
	Notional    uint64
	MinProfit   decimal.Decimal
	SlippageBps int
}

// Detector compares buy and sell routes for a pair across venues and
// raises a signal when the round-trip profit exceeds the threshold. It is
// invoked periodically, not per trade.
type Detector struct {
	quoter routing.Quoter
	health *routing.HealthChecker
	opts   Options
	logger zerolog.Logger
}

// NewDetector constructs an arbitrage detector.
func NewDetector(quoter routing.Quoter, health *routing.HealthChecker, opts Options, logger zerolog.Logger) *Detector {
	if opts.MinProfit.IsZero() {
		opts.MinProfit = decimal.NewFromFloat(0.005)
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 50
	}
	return &Detector{
		quoter: quoter,
		health: health,
		opts:   opts,
		logger: logger.With().Str("component", "arbitrage_detector").Logger(),
	}
}

// Scan quotes the pair on every healthy venue and reports a signal when
// bestSellOutput / inputAmount strictly exceeds 1 + MinProfit. At least two
// independent venue quotes are required; at exactly the threshold no signal
// is emitted.
func (d *Detector) Scan(ctx context.Context, pair Pair) (*Signal, error) {
	venues := d.health.Eligible(d.opts.Venues)
	if len(venues) < 2 {
		return nil, nil
	}

	buyReq := routing.RouteRequest{
		InputMint:   pair.Base,
		OutputMint:  pair.Quote,
		Amount:      d.opts.Notional,
		SlippageBps: d.opts.SlippageBps,
		Kind:        routing.KindMarket,
	}
	buys := d.quoteAll(ctx, venues, buyReq)
	if len(buys) < 2 {
		return nil, nil
	}

	bestBuy := d.pickBest(buys)

	sellReq := routing.RouteRequest{
		InputMint:   pair.Quote,
		OutputMint:  pair.Base,
		Amount:      bestBuy.OutAmount,
		SlippageBps: d.opts.SlippageBps,
		Kind:        routing.KindMarket,
	}
	var sellVenues []string
	for _, v := range venues {
		if v != bestBuy.Venue {
			sellVenues = append(sellVenues, v)
		}
	}
	sells := d.quoteAll(ctx, sellVenues, sellReq)
	if len(sells) == 0 {
		return nil, nil
	}
	bestSell := d.pickBest(sells)

	ratio := decimal.NewFromInt(int64(bestSell.OutAmount)).Div(decimal.NewFromInt(int64(d.opts.Notional)))
	threshold := decimal.NewFromInt(1).Add(d.opts.MinProfit)
	if !ratio.GreaterThan(threshold) {
		return nil, nil
	}

	signal := &Signal{
		Pair:        pair,
		BuyVenue:    bestBuy.Venue,
		SellVenue:   bestSell.Venue,
		InAmount:    d.opts.Notional,
		ReturnedAmt: bestSell.OutAmount,
		ProfitRatio: ratio,
		ObservedAt:  time.Now().UTC(),
	}

	d.logger.Info().
		Str("base", pair.Base).
		Str("quote", pair.Quote).
		Str("buy_venue", signal.BuyVenue).
		Str("sell_venue", signal.SellVenue).
		Str("profit_ratio", ratio.String()).
		Msg("arbitrage opportunity detected")

	return signal, nil
}

func (d *Detector) quoteAll(ctx context.Context, venues []string, req routing.RouteRequest) []*routing.RouteQuote {
	quotes := make([]*routing.RouteQuote, 0, len(venues))
	for _, venue := range venues {
		quote, err := d.quoter.Quote(ctx, venue, req)
		if err != nil {
			d.health.ReportFailure(venue)
			d.logger.Debug().Err(err).Str("venue", venue).Msg("arbitrage quote failed")
			continue
		}
		d.health.ReportSuccess(venue)
		quotes = append(quotes, quote)
	}
	return quotes
}

// pickBest prefers the higher output amount; on a tie, the healthier venue.
func (d *Detector) pickBest(quotes []*routing.RouteQuote) *routing.RouteQuote {
	best := quotes[0]
	for _, q := range quotes[1:] {
		switch {
		case q.OutAmount > best.OutAmount:
			best = q
		case q.OutAmount == best.OutAmount && d.health.Score(q.Venue) > d.health.Score(best.Venue):
			best = q
		}
	}
	return best
}
