package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"soltrader/internal/routing"
)

// SwapAPI turns a chosen route into an unsigned transaction.
type SwapAPI interface {
	BuildSwap(ctx context.Context, route *routing.RouteQuote, userPublicKey string) ([]byte, error)
}

// ConfirmationStatus is the ledger's view of a submitted transaction.
type ConfirmationStatus string

const (
	StatusProcessed ConfirmationStatus = "processed"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
	StatusFailed    ConfirmationStatus = "failed"
	StatusUnknown   ConfirmationStatus = "unknown"
)

// Ledger submits signed transactions and reports their confirmation state.
type Ledger interface {
	Submit(ctx context.Context, transaction, signature []byte) (string, error)
	Status(ctx context.Context, signature string) (ConfirmationStatus, error)
}

const swapPath = "/swap"

// SwapClientOptions parameterise the execution API client.
type SwapClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// SwapClient builds unsigned swap transactions via the execution API.
type SwapClient struct {
	opts    SwapClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSwapClient constructs an execution API client.
func NewSwapClient(opts SwapClientOptions, logger zerolog.Logger) *SwapClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag/v6"
	}
	return &SwapClient{
		opts:    opts,
		logger:  logger.With().Str("component", "swap_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type swapRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
	WrapUnwrapSOL bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

// BuildSwap requests an unsigned transaction for the route.
func (c *SwapClient) BuildSwap(ctx context.Context, route *routing.RouteQuote, userPublicKey string) ([]byte, error) {
	if len(route.Raw) == 0 {
		return nil, fmt.Errorf("route carries no quote payload")
	}

	body, err := json.Marshal(swapRequest{
		QuoteResponse: route.Raw,
		UserPublicKey: userPublicKey,
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+swapPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed swapResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("swap api error: %s", parsed.Error)
	}
	if parsed.SwapTransaction == "" {
		return nil, fmt.Errorf("swap api returned empty transaction")
	}

	tx, err := base64.StdEncoding.DecodeString(parsed.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// RPCClient talks JSON-RPC 2.0 to the ledger node.
type RPCClient struct {
	endpoint  string
	client    *http.Client
	logger    zerolog.Logger
	requestID atomic.Uint64
}

// NewRPCClient constructs a ledger RPC client.
func NewRPCClient(endpoint string, timeout time.Duration, logger zerolog.Logger) *RPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "rpc_client").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return parsed.Error
	}
	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Submit sends the signed transaction and returns its signature.
func (c *RPCClient) Submit(ctx context.Context, transaction, signature []byte) (string, error) {
	signed := append(signature, transaction...)
	encoded := base64.StdEncoding.EncodeToString(signed)

	var sig string
	params := []interface{}{encoded, map[string]interface{}{"encoding": "base64", "skipPreflight": false}}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

type signatureStatusResult struct {
	Value []*struct {
		ConfirmationStatus string          `json:"confirmationStatus"`
		Err                json.RawMessage `json:"err"`
	} `json:"value"`
}

// Status polls the transaction's confirmation status.
func (c *RPCClient) Status(ctx context.Context, signature string) (ConfirmationStatus, error) {
	var result signatureStatusResult
	params := []interface{}{[]string{signature}, map[string]interface{}{"searchTransactionHistory": false}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return StatusUnknown, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return StatusUnknown, nil
	}
	entry := result.Value[0]
	if len(entry.Err) > 0 && string(entry.Err) != "null" {
		return StatusFailed, nil
	}
	switch entry.ConfirmationStatus {
	case "processed":
		return StatusProcessed, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "finalized":
		return StatusFinalized, nil
	default:
		return StatusUnknown, nil
	}
}

var (
	_ SwapAPI = (*SwapClient)(nil)
	_ Ledger  = (*RPCClient)(nil)
)
