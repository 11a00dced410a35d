package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"soltrader/internal/storage"
)

// Export renders the trade journal as CSV and/or a PNG execution chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-7 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	trades, err := store.ListTradesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		a.Logger.Info().Msg("no trades found for export window")
		return nil
	}

	downsampled := downsampleTrades(trades, opts.MaxPoints)
	a.Logger.Info().Int("total", len(trades)).Int("exported", len(downsampled)).Msg("exporting trades")

	if opts.CSVPath != "" {
		if err := writeTradesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTradesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTrades(trades []storage.TradeRecord, max int) []storage.TradeRecord {
	if max <= 0 || len(trades) <= max {
		return trades
	}

	result := make([]storage.TradeRecord, 0, max)
	step := float64(len(trades)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(trades) {
			idx = len(trades) - 1
		}
		result = append(result, trades[idx])
	}
	return result
}

func writeTradesCSV(path string, trades []storage.TradeRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"executed_at", "state", "input_mint", "output_mint", "in_amount", "out_amount", "execution_price", "slippage_pct", "price_impact_pct", "venues", "signature"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, trade := range trades {
		record := []string{
			trade.ExecutedAt.Format(time.RFC3339),
			trade.State,
			trade.InputMint,
			trade.OutputMint,
			formatInt(trade.InAmount),
			formatInt(trade.OutAmount),
			trade.ExecutionPrice.String(),
			trade.SlippagePct.String(),
			trade.PriceImpactPct.String(),
			strings.Join(trade.Venues, ">"),
			trade.Signature,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeTradesPNG(path string, trades []storage.TradeRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(trades))
	prices := make([]float64, len(trades))
	slippage := make([]float64, len(trades))

	for i, trade := range trades {
		x[i] = trade.ExecutedAt
		prices[i] = trade.ExecutionPrice.InexactFloat64()
		slippage[i] = trade.SlippagePct.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Execution price",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Slippage (%)",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Execution price",
				XValues: x,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Slippage %",
				XValues: x,
				YValues: slippage,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
