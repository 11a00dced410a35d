package arbitrage

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/routing"
)

// directional fake: output depends on venue and swap direction.
type fakeQuoter struct {
	// buy[venue] is the quote amount returned for base -> quote swaps,
	// sell[venue] for quote -> base.
	buy   map[string]uint64
	sell  map[string]uint64
	fails map[string]bool
}

func (f *fakeQuoter) Quote(_ context.Context, venue string, req routing.RouteRequest) (*routing.RouteQuote, error) {
	if f.fails[venue] {
		return nil, fmt.Errorf("venue %s unavailable", venue)
	}
	table := f.buy
	if req.InputMint == "QuoteMint" {
		table = f.sell
	}
	out, ok := table[venue]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", venue)
	}
	return &routing.RouteQuote{
		Venue:      venue,
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		InAmount:   req.Amount,
		OutAmount:  out,
	}, nil
}

func newTestDetector(quoter routing.Quoter, venues []string, health *routing.HealthChecker) *Detector {
	if health == nil {
		health = routing.NewHealthChecker(0.2, 0.8)
	}
	return NewDetector(quoter, health, Options{
		Venues:   venues,
		Notional: 1_000_000_000,
	}, zerolog.Nop())
}

func solUSDC() Pair {
	return Pair{Base: "BaseMint", Quote: "QuoteMint"}
}

func TestScanDetectsOpportunity(t *testing.T) {
	quoter := &fakeQuoter{
		buy:  map[string]uint64{"Orca": 150_000_000, "Raydium": 148_000_000},
		sell: map[string]uint64{"Raydium": 1_010_000_000},
	}
	d := newTestDetector(quoter, []string{"Orca", "Raydium"}, nil)

	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal == nil {
		t.Fatal("expected a signal for a 1 percent round trip")
	}
	if signal.BuyVenue != "Orca" {
		t.Fatalf("buy venue should be Orca, got %s", signal.BuyVenue)
	}
	if signal.SellVenue != "Raydium" {
		t.Fatalf("sell venue should be Raydium, got %s", signal.SellVenue)
	}
	if signal.ReturnedAmt != 1_010_000_000 {
		t.Fatalf("returned amount should be the sell output, got %d", signal.ReturnedAmt)
	}
	if !signal.ProfitRatio.Equal(decimal.NewFromFloat(1.01)) {
		t.Fatalf("profit ratio should be 1.01, got %s", signal.ProfitRatio)
	}
}

func TestScanNoSignalAtExactThreshold(t *testing.T) {
	// Returns exactly 1.005x: not strictly above the threshold.
	quoter := &fakeQuoter{
		buy:  map[string]uint64{"Orca": 150_000_000, "Raydium": 148_000_000},
		sell: map[string]uint64{"Raydium": 1_005_000_000},
	}
	d := newTestDetector(quoter, []string{"Orca", "Raydium"}, nil)

	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal != nil {
		t.Fatal("exactly the threshold must not raise a signal")
	}
}

func TestScanNoSignalBelowThreshold(t *testing.T) {
	quoter := &fakeQuoter{
		buy:  map[string]uint64{"Orca": 150_000_000, "Raydium": 148_000_000},
		sell: map[string]uint64{"Raydium": 1_002_000_000},
	}
	d := newTestDetector(quoter, []string{"Orca", "Raydium"}, nil)

	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal != nil {
		t.Fatal("a 0.2 percent round trip is below the threshold")
	}
}

func TestScanRequiresTwoVenues(t *testing.T) {
	quoter := &fakeQuoter{buy: map[string]uint64{"Orca": 150_000_000}}

	d := newTestDetector(quoter, []string{"Orca"}, nil)
	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal != nil {
		t.Fatal("a single venue cannot arbitrage against itself")
	}
}

func TestScanRequiresTwoBuyQuotes(t *testing.T) {
	// Two venues eligible but only one answers.
	quoter := &fakeQuoter{
		buy:   map[string]uint64{"Orca": 150_000_000},
		fails: map[string]bool{"Raydium": true},
	}
	d := newTestDetector(quoter, []string{"Orca", "Raydium"}, nil)

	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal != nil {
		t.Fatal("fewer than two buy quotes must not raise a signal")
	}
}

func TestScanSellExcludesBuyVenue(t *testing.T) {
	// Orca wins the buy leg and also offers the best sell price, but the
	// sell leg must cross venues.
	quoter := &fakeQuoter{
		buy:  map[string]uint64{"Orca": 150_000_000, "Raydium": 148_000_000, "Meteora": 147_000_000},
		sell: map[string]uint64{"Orca": 1_100_000_000, "Raydium": 1_020_000_000, "Meteora": 1_015_000_000},
	}
	d := newTestDetector(quoter, []string{"Orca", "Raydium", "Meteora"}, nil)

	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal == nil {
		t.Fatal("expected a signal")
	}
	if signal.SellVenue == signal.BuyVenue {
		t.Fatal("sell venue must differ from buy venue")
	}
	if signal.SellVenue != "Raydium" {
		t.Fatalf("best cross-venue sell is Raydium, got %s", signal.SellVenue)
	}
}

func TestScanTieBreakByHealth(t *testing.T) {
	health := routing.NewHealthChecker(0.2, 0.8)
	// Raydium slightly degraded but still eligible.
	health.ReportFailure("Raydium")
	if !health.Healthy("Raydium") {
		t.Fatalf("test setup: Raydium should remain eligible, score %v", health.Score("Raydium"))
	}

	quoter := &fakeQuoter{
		buy:  map[string]uint64{"Orca": 150_000_000, "Raydium": 150_000_000},
		sell: map[string]uint64{"Orca": 1_020_000_000, "Raydium": 1_020_000_000},
	}
	d := newTestDetector(quoter, []string{"Raydium", "Orca"}, health)

	signal, err := d.Scan(context.Background(), solUSDC())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if signal == nil {
		t.Fatal("expected a signal")
	}
	if signal.BuyVenue != "Orca" {
		t.Fatalf("tied outputs should prefer the healthier venue, got %s", signal.BuyVenue)
	}
}
