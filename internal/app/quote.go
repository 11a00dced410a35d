package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"soltrader/internal/routing"
)

// Quote fetches and prints the ranked routes for a single swap.
func (a *App) Quote(ctx context.Context, opts QuoteOptions) error {
	if opts.InputMint == "" || opts.OutputMint == "" {
		return errors.New("--input and --output mints are required")
	}
	if opts.Amount == 0 {
		return errors.New("--amount must be positive")
	}

	redisClient := a.newRedis()
	defer redisClient.Close()

	cache, err := a.newCache(redisClient)
	if err != nil {
		return err
	}
	vol := a.newVolatilityManager(cache)
	prices := a.newPriceClient()
	health := routing.NewHealthChecker(a.Config.Routing.HealthAlpha, a.Config.Routing.HealthThreshold)
	selector := a.newSelector(prices, vol, health, a.newQuoter())

	set, err := selector.FindBestRoute(ctx, routing.RouteRequest{
		InputMint:   opts.InputMint,
		OutputMint:  opts.OutputMint,
		Amount:      opts.Amount,
		SlippageBps: a.Config.Routing.SlippageBps,
		Kind:        routing.KindMarket,
	})
	if err != nil {
		return err
	}
	if set == nil || set.Best == nil {
		fmt.Fprintln(os.Stdout, "no route available")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rank\tVenue\tIn\tOut\tImpact%\tFees\tEffective")

	for i, quote := range append([]*routing.RouteQuote{set.Best}, set.Alternatives...) {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%d\t%d\t%s\t%d\t%s\n",
			i+1,
			quote.Venue,
			quote.InAmount,
			quote.OutAmount,
			quote.PriceImpactPct.StringFixed(4),
			quote.FeeAmount,
			quote.EffectiveOutput().StringFixed(0),
		)
	}

	return writer.Flush()
}
