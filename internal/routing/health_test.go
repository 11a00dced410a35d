package routing

import (
	"math"
	"testing"
)

func TestHealthUnknownVenueHealthy(t *testing.T) {
	h := NewHealthChecker(0.2, 0.8)
	if !h.Healthy("Orca") {
		t.Fatal("unknown venues must start healthy")
	}
	if got := h.Score("Orca"); got != 1 {
		t.Fatalf("unknown venue score should be 1, got %v", got)
	}
}

func TestHealthEWMADecay(t *testing.T) {
	h := NewHealthChecker(0.2, 0.8)

	h.ReportFailure("Orca")
	if got := h.Score("Orca"); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("one failure from 1 should score 0.8, got %v", got)
	}
	if !h.Healthy("Orca") {
		t.Fatal("score 0.8 still clears a 0.8 threshold")
	}

	h.ReportFailure("Orca")
	if h.Healthy("Orca") {
		t.Fatal("two failures should drop Orca below the threshold")
	}
}

func TestHealthRecovery(t *testing.T) {
	h := NewHealthChecker(0.2, 0.8)

	for i := 0; i < 5; i++ {
		h.ReportFailure("Raydium")
	}
	if h.Healthy("Raydium") {
		t.Fatal("venue should be unhealthy after a failure run")
	}

	for i := 0; i < 20; i++ {
		h.ReportSuccess("Raydium")
	}
	if !h.Healthy("Raydium") {
		t.Fatalf("sustained successes should restore health, score %v", h.Score("Raydium"))
	}
}

func TestHealthEligible(t *testing.T) {
	h := NewHealthChecker(0.2, 0.8)
	h.ReportFailure("Meteora")
	h.ReportFailure("Meteora")

	eligible := h.Eligible([]string{"Orca", "Raydium", "Meteora"})
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible venues, got %v", eligible)
	}
	for _, v := range eligible {
		if v == "Meteora" {
			t.Fatal("Meteora should be filtered out")
		}
	}
}
