package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"soltrader/internal/routing"
)

func TestSwapClientBuildSwap(t *testing.T) {
	unsigned := []byte("unsigned transaction bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req swapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode swap request: %v", err)
		}
		if req.UserPublicKey != "Wallet111" {
			t.Errorf("userPublicKey should be Wallet111, got %s", req.UserPublicKey)
		}
		if !req.WrapUnwrapSOL {
			t.Error("wrapAndUnwrapSol should be set")
		}
		if len(req.QuoteResponse) == 0 {
			t.Error("quoteResponse should carry the raw quote")
		}
		_ = json.NewEncoder(w).Encode(swapResponse{
			SwapTransaction: base64.StdEncoding.EncodeToString(unsigned),
		})
	}))
	defer srv.Close()

	c := NewSwapClient(SwapClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	route := &routing.RouteQuote{Raw: []byte(`{"outAmount":"1"}`)}

	tx, err := c.BuildSwap(context.Background(), route, "Wallet111")
	if err != nil {
		t.Fatalf("BuildSwap: %v", err)
	}
	if string(tx) != string(unsigned) {
		t.Fatalf("transaction bytes mismatch: %q", tx)
	}
}

func TestSwapClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(swapResponse{Error: "route expired"})
	}))
	defer srv.Close()

	c := NewSwapClient(SwapClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if _, err := c.BuildSwap(context.Background(), &routing.RouteQuote{Raw: []byte(`{}`)}, "W"); err == nil {
		t.Fatal("API-level error should surface")
	}
}

func TestSwapClientRequiresRawQuote(t *testing.T) {
	c := NewSwapClient(SwapClientOptions{BaseURL: "http://localhost"}, zerolog.Nop())
	if _, err := c.BuildSwap(context.Background(), &routing.RouteQuote{}, "W"); err == nil {
		t.Fatal("a route without its raw payload cannot be built")
	}
}

func TestRPCClientSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if req.Method != "sendTransaction" {
			t.Errorf("expected sendTransaction, got %s", req.Method)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %s", req.JSONRPC)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "SubmittedSig",
		})
	}))
	defer srv.Close()

	c := NewRPCClient(srv.URL, time.Second, zerolog.Nop())
	sig, err := c.Submit(context.Background(), []byte("tx"), []byte("sig"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sig != "SubmittedSig" {
		t.Fatalf("expected SubmittedSig, got %s", sig)
	}
}

func TestRPCClientSubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32002, "message": "blockhash not found"},
		})
	}))
	defer srv.Close()

	c := NewRPCClient(srv.URL, time.Second, zerolog.Nop())
	if _, err := c.Submit(context.Background(), []byte("tx"), []byte("sig")); err == nil {
		t.Fatal("rpc error should surface")
	}
}

func TestRPCClientStatus(t *testing.T) {
	cases := []struct {
		name   string
		value  any
		expect ConfirmationStatus
	}{
		{"confirmed", []map[string]any{{"confirmationStatus": "confirmed"}}, StatusConfirmed},
		{"finalized", []map[string]any{{"confirmationStatus": "finalized"}}, StatusFinalized},
		{"processed", []map[string]any{{"confirmationStatus": "processed"}}, StatusProcessed},
		{"on-chain error", []map[string]any{{"confirmationStatus": "confirmed", "err": map[string]any{"InstructionError": []any{0, "Custom"}}}}, StatusFailed},
		{"not yet visible", []any{nil}, StatusUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req rpcRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.Method != "getSignatureStatuses" {
					t.Errorf("expected getSignatureStatuses, got %s", req.Method)
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"result":  map[string]any{"value": tc.value},
				})
			}))
			defer srv.Close()

			c := NewRPCClient(srv.URL, time.Second, zerolog.Nop())
			status, err := c.Status(context.Background(), "Sig")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if status != tc.expect {
				t.Fatalf("expected %s, got %s", tc.expect, status)
			}
		})
	}
}
