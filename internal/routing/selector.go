package routing

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"soltrader/internal/marketdata"
	"soltrader/internal/pricing"
)

// SelectorOptions tune route selection.
type SelectorOptions struct {
	Venues []string
	TopN   int
}

// Selector computes and ranks candidate swap routes across healthy venues.
// Price unavailability and empty candidate sets are expected, recoverable
// conditions reported as a nil RouteSet, never as an error.
type Selector struct {
	prices pricing.Source
	vol    *marketdata.VolatilityManager
	health *HealthChecker
	quoter Quoter
	opts   SelectorOptions
	logger zerolog.Logger
}

// NewSelector constructs a route selector.
func NewSelector(prices pricing.Source, vol *marketdata.VolatilityManager, health *HealthChecker, quoter Quoter, opts SelectorOptions, logger zerolog.Logger) *Selector {
	if opts.TopN <= 0 {
		opts.TopN = 3
	}
	return &Selector{
		prices: prices,
		vol:    vol,
		health: health,
		quoter: quoter,
		opts:   opts,
		logger: logger.With().Str("component", "route_selector").Logger(),
	}
}

// FindBestRoute validates the request, prices both sides, adjusts the size
// for volatility, queries every healthy venue concurrently, and returns the
// ranked top-N routes. A nil RouteSet with nil error means no route.
func (s *Selector) FindBestRoute(ctx context.Context, req RouteRequest) (*RouteSet, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	prices, err := s.prices.GetPrices(ctx, []string{req.InputMint, req.OutputMint})
	if err != nil {
		if errors.Is(err, pricing.ErrNoPriceData) {
			return nil, nil
		}
		return nil, err
	}
	if _, ok := prices[req.InputMint]; !ok {
		s.logger.Debug().Str("mint", req.InputMint).Msg("no route: input price unavailable")
		return nil, nil
	}
	if _, ok := prices[req.OutputMint]; !ok {
		s.logger.Debug().Str("mint", req.OutputMint).Msg("no route: output price unavailable")
		return nil, nil
	}

	adjusted := req
	if s.vol != nil {
		adjusted.Amount = s.vol.AdjustPosition(ctx, req.Amount, req.InputMint)
		if adjusted.Amount == 0 {
			adjusted.Amount = req.Amount
		}
	}

	venues := s.health.Eligible(s.opts.Venues)
	if len(venues) == 0 {
		s.logger.Warn().Msg("no route: all venues below health threshold")
		return nil, nil
	}

	quotes := s.collectQuotes(ctx, venues, adjusted)
	if len(quotes) == 0 {
		return nil, nil
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].EffectiveOutput().GreaterThan(quotes[j].EffectiveOutput())
	})
	if len(quotes) > s.opts.TopN {
		quotes = quotes[:s.opts.TopN]
	}

	s.logger.Debug().
		Str("input", req.InputMint).
		Str("output", req.OutputMint).
		Uint64("amount", adjusted.Amount).
		Str("venue", quotes[0].Venue).
		Int("candidates", len(quotes)).
		Msg("route selected")

	return &RouteSet{Best: quotes[0], Alternatives: quotes[1:]}, nil
}

func (s *Selector) collectQuotes(ctx context.Context, venues []string, req RouteRequest) []*RouteQuote {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		quotes []*RouteQuote
	)

	for _, venue := range venues {
		wg.Add(1)
		go func(venue string) {
			defer wg.Done()

			quote, err := s.quoter.Quote(ctx, venue, req)
			if err != nil {
				s.health.ReportFailure(venue)
				s.logger.Debug().Err(err).Str("venue", venue).Msg("venue quote failed")
				return
			}
			s.health.ReportSuccess(venue)

			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
		}(venue)
	}
	wg.Wait()
	return quotes
}

func validate(req RouteRequest) error {
	if req.InputMint == "" {
		return &ValidationError{Field: "inputMint", Reason: "must not be empty"}
	}
	if req.OutputMint == "" {
		return &ValidationError{Field: "outputMint", Reason: "must not be empty"}
	}
	if req.InputMint == req.OutputMint {
		return &ValidationError{Field: "outputMint", Reason: "must differ from inputMint"}
	}
	if req.Amount == 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if req.Kind == KindLimit && req.SlippageBps <= 0 {
		return &ValidationError{Field: "slippageBps", Reason: "required for limit requests"}
	}
	return nil
}

var _ Router = (*Selector)(nil)
