package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"soltrader/internal/storage"
)

// Show prints recent journaled trades.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show trades")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}

	trades, err := store.ListRecentTrades(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Fprintln(os.Stdout, "no trades found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tState\tIn\tOut\tPrice\tSlippage%\tImpact%\tVenues\tReason")

	for _, trade := range trades {
		reason := ""
		if trade.Reason != nil {
			reason = sanitizeInline(*trade.Reason)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d %s\t%d %s\t%s\t%s\t%s\t%s\t%s\n",
			trade.ExecutedAt.UTC().Format(time.RFC3339),
			trade.State,
			trade.InAmount,
			shortMint(trade.InputMint),
			trade.OutAmount,
			shortMint(trade.OutputMint),
			trade.ExecutionPrice.StringFixed(6),
			trade.SlippagePct.StringFixed(3),
			trade.PriceImpactPct.StringFixed(3),
			strings.Join(trade.Venues, ">"),
			reason,
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no risk alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tMint\tEntry\tMark\tChange%\tDetail")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Kind,
			shortMint(alert.Mint),
			alert.EntryPrice.StringFixed(6),
			alert.MarkPrice.StringFixed(6),
			alert.ChangePct.StringFixed(2),
			sanitizeInline(alert.Detail),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
