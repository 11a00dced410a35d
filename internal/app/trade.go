package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// Trade routes and executes a single swap from the command line. The
// resulting position is monitored only for the lifetime of this process;
// the trade itself is journaled when a database is configured.
func (a *App) Trade(ctx context.Context, opts TradeOptions) error {
	if opts.InputMint == "" || opts.OutputMint == "" {
		return errors.New("--input and --output mints are required")
	}
	if opts.Amount == 0 {
		return errors.New("--amount must be positive")
	}
	if err := validateMints(opts.InputMint, opts.OutputMint); err != nil {
		return err
	}

	svc, cleanup, err := a.buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.Trade(ctx, opts.InputMint, opts.OutputMint, opts.Amount)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "State\tSignature\tIn\tOut\tPrice\tSlippage%\tVenues")
	fmt.Fprintf(
		writer,
		"%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
		result.State,
		result.Signature,
		result.InAmount,
		result.OutAmount,
		result.ExecutionPrice.StringFixed(6),
		result.SlippagePct.StringFixed(3),
		strings.Join(result.Venues, ">"),
	)
	return writer.Flush()
}
