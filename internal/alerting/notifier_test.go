package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{
		Kind:       KindStopLoss,
		Mint:       "BaseMint",
		EntryPrice: decimal.NewFromInt(100),
		MarkPrice:  decimal.NewFromInt(94),
		ChangePct:  decimal.NewFromInt(-6),
		At:         time.Now(),
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Stop-Loss Triggered") {
		t.Fatalf("message should carry the alert kind, got %q", received["text"])
	}
	if !strings.Contains(received["text"], "BaseMint") {
		t.Fatalf("message should name the token, got %q", received["text"])
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Kind: KindStopLoss}); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Kind: KindArbitrage}); err == nil {
		t.Fatal("HTTP 502 should be an error")
	}
}

func TestRenderMessageKinds(t *testing.T) {
	arb := renderMessage(Notification{
		Kind:        KindArbitrage,
		BaseMint:    "BaseMint",
		QuoteMint:   "QuoteMint",
		BuyVenue:    "Orca",
		SellVenue:   "Raydium",
		ProfitRatio: decimal.NewFromFloat(1.01),
	})
	if !strings.Contains(arb, "Arbitrage") || !strings.Contains(arb, "Orca") {
		t.Fatalf("arbitrage render incomplete: %q", arb)
	}

	failed := renderMessage(Notification{
		Kind: KindStopLossCloseFailed,
		Mint: "BaseMint",
	})
	if !strings.Contains(failed, "FAILED") || !strings.Contains(failed, "remains open") {
		t.Fatalf("close-failure render incomplete: %q", failed)
	}
}
