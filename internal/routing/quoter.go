package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const quotePath = "/quote"

// QuoteOptions parameterise the quote API client.
type QuoteOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// QuoteClient fetches swap quotes from the route aggregation API,
// restricted to a single venue per call.
type QuoteClient struct {
	opts    QuoteOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewQuoteClient constructs a quote API client.
func NewQuoteClient(opts QuoteOptions, logger zerolog.Logger) *QuoteClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag/v6"
	}
	return &QuoteClient{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Quote requests a route for the swap through the given venue only.
func (c *QuoteClient) Quote(ctx context.Context, venue string, req RouteRequest) (*RouteQuote, error) {
	query := url.Values{}
	query.Set("inputMint", req.InputMint)
	query.Set("outputMint", req.OutputMint)
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	if req.SlippageBps > 0 {
		query.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	}
	if venue != "" {
		query.Set("dexes", venue)
	}

	endpoint := c.baseURL + quotePath + "?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed quoteResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	return parsed.toRouteQuote(venue, payload)
}

type quoteResponse struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
	RoutePlan            []struct {
		SwapInfo struct {
			Label      string `json:"label"`
			InputMint  string `json:"inputMint"`
			OutputMint string `json:"outputMint"`
			InAmount   string `json:"inAmount"`
			OutAmount  string `json:"outAmount"`
			FeeAmount  string `json:"feeAmount"`
		} `json:"swapInfo"`
		Percent int `json:"percent"`
	} `json:"routePlan"`
}

func (r quoteResponse) toRouteQuote(venue string, raw []byte) (*RouteQuote, error) {
	inAmount, err := strconv.ParseUint(r.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse inAmount: %w", err)
	}
	outAmount, err := strconv.ParseUint(r.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse outAmount: %w", err)
	}
	if outAmount == 0 {
		return nil, fmt.Errorf("quote returned zero output")
	}
	threshold, _ := strconv.ParseUint(r.OtherAmountThreshold, 10, 64)

	impact := decimal.Zero
	if r.PriceImpactPct != "" {
		if parsed, err := decimal.NewFromString(r.PriceImpactPct); err == nil {
			impact = parsed
		}
	}

	quote := &RouteQuote{
		Venue:                venue,
		InputMint:            r.InputMint,
		OutputMint:           r.OutputMint,
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		PriceImpactPct:       impact,
		Raw:                  raw,
	}

	var totalFees uint64
	for _, hop := range r.RoutePlan {
		legIn, _ := strconv.ParseUint(hop.SwapInfo.InAmount, 10, 64)
		legOut, _ := strconv.ParseUint(hop.SwapInfo.OutAmount, 10, 64)
		legFee, _ := strconv.ParseUint(hop.SwapInfo.FeeAmount, 10, 64)
		totalFees += legFee
		quote.Legs = append(quote.Legs, RouteLeg{
			Venue:      hop.SwapInfo.Label,
			InputMint:  hop.SwapInfo.InputMint,
			OutputMint: hop.SwapInfo.OutputMint,
			InAmount:   legIn,
			OutAmount:  legOut,
			FeeAmount:  legFee,
		})
	}
	quote.FeeAmount = totalFees
	return quote, nil
}

var _ Quoter = (*QuoteClient)(nil)
