package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/position"
	"soltrader/internal/routing"
	"soltrader/internal/signer"
)

// Journal persists trade results; nil disables persistence.
type Journal interface {
	InsertTrade(ctx context.Context, result TradeResult) error
}

// Options tune trade execution.
type Options struct {
	StopLossThreshold decimal.Decimal
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	HistorySize       int
}

// Executor builds, signs, submits, and confirms swap transactions. A
// failed transaction is recorded and surfaced, never retried: the
// execution API offers no idempotency guarantee.
type Executor struct {
	swap    SwapAPI
	ledger  Ledger
	signer  signer.Signer
	router  routing.Router
	book    *position.Book
	journal Journal
	results *resultLog
	opts    Options
	logger  zerolog.Logger
	idSeq   atomic.Uint64
}

// New constructs a trade executor.
func New(swap SwapAPI, ledger Ledger, sig signer.Signer, router routing.Router, book *position.Book, journal Journal, opts Options, logger zerolog.Logger) *Executor {
	if opts.StopLossThreshold.IsZero() {
		opts.StopLossThreshold = decimal.NewFromFloat(0.05)
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Executor{
		swap:    swap,
		ledger:  ledger,
		signer:  sig,
		router:  router,
		book:    book,
		journal: journal,
		results: newResultLog(opts.HistorySize),
		opts:    opts,
		logger:  logger.With().Str("component", "trade_executor").Logger(),
	}
}

// Execute runs the chosen route through the full pipeline and, on
// confirmation, opens a position with its stop-loss anchored to the entry
// price.
func (e *Executor) Execute(ctx context.Context, route *routing.RouteQuote) (*TradeResult, error) {
	result, err := e.submitRoute(ctx, route)
	if err != nil {
		return result, err
	}

	entry := executionPrice(route)
	pos := e.book.Open(position.Position{
		Mint:              route.OutputMint,
		QuoteMint:         route.InputMint,
		EntryPrice:        entry,
		CurrentPrice:      entry,
		Size:              route.OutAmount,
		StopLossPrice:     entry.Mul(decimal.NewFromInt(1).Sub(e.opts.StopLossThreshold)),
		StopLossThreshold: e.opts.StopLossThreshold,
		OpenedAt:          result.Timestamp,
		LastUpdate:        result.Timestamp,
	})

	e.logger.Info().
		Uint64("position_id", pos.ID).
		Str("mint", pos.Mint).
		Str("entry_price", entry.String()).
		Str("stop_loss", pos.StopLossPrice.String()).
		Msg("position opened")

	return result, nil
}

// Close sells the position back to its quote mint and removes it from the
// book on confirmation.
func (e *Executor) Close(ctx context.Context, pos position.Position) (*TradeResult, error) {
	set, err := e.router.FindBestRoute(ctx, routing.RouteRequest{
		InputMint:  pos.Mint,
		OutputMint: pos.QuoteMint,
		Amount:     pos.Size,
		Kind:       routing.KindMarket,
	})
	if err != nil {
		return nil, fmt.Errorf("route closing trade: %w", err)
	}
	if set == nil || set.Best == nil {
		return nil, fmt.Errorf("no route to close position %d", pos.ID)
	}

	result, err := e.submitRoute(ctx, set.Best)
	if err != nil {
		return result, err
	}

	if _, ok := e.book.Close(pos.ID); !ok {
		// Already removed by a concurrent closer; the trade still stands.
		e.logger.Warn().Uint64("position_id", pos.ID).Msg("position already closed in book")
	}
	return result, nil
}

// submitRoute drives one trade through Pending, Submitted, and a terminal
// Confirmed or Failed state.
func (e *Executor) submitRoute(ctx context.Context, route *routing.RouteQuote) (*TradeResult, error) {
	result := TradeResult{
		ID:             e.idSeq.Add(1),
		State:          StatePending,
		InputMint:      route.InputMint,
		OutputMint:     route.OutputMint,
		InAmount:       route.InAmount,
		OutAmount:      route.OutAmount,
		PriceImpactPct: route.PriceImpactPct,
		FeeAmount:      route.FeeAmount,
		Venues:         routeVenues(route),
		Timestamp:      time.Now().UTC(),
	}

	unsigned, err := e.swap.BuildSwap(ctx, route, e.signer.PublicKey())
	if err != nil {
		return e.fail(ctx, result, "build", "", err)
	}

	sig, err := e.signer.Sign(unsigned)
	if err != nil {
		return e.fail(ctx, result, "sign", "", err)
	}

	txSig, err := e.ledger.Submit(ctx, unsigned, sig)
	if err != nil {
		return e.fail(ctx, result, "submit", "", err)
	}
	result.State = StateSubmitted
	result.Signature = txSig
	e.logger.Info().Str("signature", txSig).Str("venue", route.Venue).Msg("transaction submitted")

	if err := e.awaitConfirmation(ctx, txSig); err != nil {
		return e.fail(ctx, result, "confirm", txSig, err)
	}

	result.State = StateConfirmed
	result.ExecutionPrice = executionPrice(route)
	result.SlippagePct = slippagePct(route)
	e.record(ctx, result)

	e.logger.Info().
		Str("signature", txSig).
		Str("execution_price", result.ExecutionPrice.String()).
		Msg("transaction confirmed")

	return &result, nil
}

func (e *Executor) awaitConfirmation(ctx context.Context, signature string) error {
	deadline := time.Now().Add(e.opts.ConfirmTimeout)
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := e.ledger.Status(ctx, signature)
		if err == nil {
			switch status {
			case StatusConfirmed, StatusFinalized:
				return nil
			case StatusFailed:
				return fmt.Errorf("transaction rejected on chain")
			}
		} else {
			e.logger.Debug().Err(err).Str("signature", signature).Msg("status poll failed")
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("confirmation timed out after %s", e.opts.ConfirmTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Executor) fail(ctx context.Context, result TradeResult, stage, signature string, err error) (*TradeResult, error) {
	result.State = StateFailed
	result.Signature = signature
	result.Reason = fmt.Sprintf("%s: %v", stage, err)
	e.record(ctx, result)
	e.logger.Error().Err(err).Str("stage", stage).Str("signature", signature).Msg("trade failed")
	return &result, &TransactionError{Stage: stage, Signature: signature, Err: err}
}

func (e *Executor) record(ctx context.Context, result TradeResult) {
	e.results.Append(result)
	if e.journal != nil {
		if err := e.journal.InsertTrade(ctx, result); err != nil {
			e.logger.Error().Err(err).Uint64("trade_id", result.ID).Msg("failed to journal trade")
		}
	}
}

// Positions returns the book tracking this executor's open positions.
func (e *Executor) Positions() *position.Book {
	return e.book
}

// Recent returns up to n trade results, newest first.
func (e *Executor) Recent(n int) []TradeResult {
	return e.results.Recent(n)
}

// executionPrice is the input paid per unit of output.
func executionPrice(route *routing.RouteQuote) decimal.Decimal {
	if route.OutAmount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(route.InAmount)).Div(decimal.NewFromInt(int64(route.OutAmount)))
}

// slippagePct is the tolerated shortfall between the quoted output and the
// guaranteed minimum, as a percentage of the quote.
func slippagePct(route *routing.RouteQuote) decimal.Decimal {
	if route.OutAmount == 0 || route.OtherAmountThreshold == 0 {
		return decimal.Zero
	}
	out := decimal.NewFromInt(int64(route.OutAmount))
	minOut := decimal.NewFromInt(int64(route.OtherAmountThreshold))
	return out.Sub(minOut).Div(out).Mul(decimal.NewFromInt(100))
}

func routeVenues(route *routing.RouteQuote) []string {
	if len(route.Legs) == 0 {
		return []string{route.Venue}
	}
	venues := make([]string, 0, len(route.Legs))
	for _, leg := range route.Legs {
		venues = append(venues, leg.Venue)
	}
	return venues
}
