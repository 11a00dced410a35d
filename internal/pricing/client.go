package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const pricePath = "/price"

// Options parameterise the price client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
	BatchSize     int
	MinConfidence string
	MaxRetries    int
	BaseDelay     time.Duration
	RateLimit     int
	RateWindow    time.Duration
}

// Client fetches batched token prices from the aggregation API. All callers
// contend for the same rate-limit window.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	window  *Window
	baseURL string
}

// NewClient constructs a rate-limited price client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.BatchSize <= 0 || opts.BatchSize > 100 {
		opts.BatchSize = 100
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MinConfidence == "" {
		opts.MinConfidence = ConfidenceMedium
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.jup.ag/price/v2"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "price_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		window:  NewWindow(opts.RateLimit, opts.RateWindow),
		baseURL: baseURL,
	}
}

// GetPrices retrieves prices for the given mints, issuing ceil(N/batch)
// concurrent batch calls. Entries below the confidence floor are dropped.
func (c *Client) GetPrices(ctx context.Context, mints []string) (map[string]TokenPrice, error) {
	out := make(map[string]TokenPrice, len(mints))
	if len(mints) == 0 {
		return out, nil
	}

	batches := chunk(mints, c.opts.BatchSize)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		firstEr error
	)

	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, ids []string) {
			defer wg.Done()

			prices, err := c.fetchBatch(ctx, idx, ids)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstEr == nil {
					firstEr = err
				}
				return
			}
			for mint, price := range prices {
				out[mint] = price
			}
		}(i, batch)
	}
	wg.Wait()

	if firstEr != nil {
		return nil, firstEr
	}
	return out, nil
}

// GetPrice retrieves a single mint's price. An empty result after filtering
// is reported as ErrNoPriceData, not as a failure.
func (c *Client) GetPrice(ctx context.Context, mint string) (TokenPrice, error) {
	prices, err := c.GetPrices(ctx, []string{mint})
	if err != nil {
		return TokenPrice{}, err
	}
	price, ok := prices[mint]
	if !ok {
		return TokenPrice{}, ErrNoPriceData
	}
	return price, nil
}

func (c *Client) fetchBatch(ctx context.Context, idx int, mints []string) (map[string]TokenPrice, error) {
	var result map[string]TokenPrice

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.BaseDelay
	policy.RandomizationFactor = 0.2
	policy.Multiplier = 2

	operation := func() error {
		// Every attempt, including retries, consumes a rate-limit slot.
		if err := c.window.Reserve(ctx); err != nil {
			return backoff.Permanent(err)
		}
		prices, err := c.doRequest(ctx, mints)
		if err != nil {
			return err
		}
		result = prices
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int("batch", idx).Dur("retry_in", wait).Msg("price batch failed, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxRetries)), ctx), notify)
	if err != nil {
		return nil, &BatchError{Batch: idx, Mints: mints, Err: err}
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, mints []string) (map[string]TokenPrice, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(mints, ","))
	query.Set("showExtraInfo", "true")

	endpoint := c.baseURL + pricePath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
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
		err := fmt.Errorf("price api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var parsed priceResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	minRank := confidenceRank(c.opts.MinConfidence)
	out := make(map[string]TokenPrice, len(parsed.Data))
	for mint, entry := range parsed.Data {
		price, ok := entry.tokenPrice(mint)
		if !ok {
			continue
		}
		if entry.ExtraInfo != nil && confidenceRank(entry.ExtraInfo.ConfidenceLevel) < minRank {
			c.logger.Debug().Str("mint", mint).Str("confidence", entry.ExtraInfo.ConfidenceLevel).Msg("dropping low-confidence quote")
			continue
		}
		out[mint] = price
	}
	return out, nil
}

type priceResponse struct {
	Data map[string]priceEntry `json:"data"`
}

type priceEntry struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	ExtraInfo *struct {
		ConfidenceLevel string `json:"confidenceLevel"`
		DepthUSD        string `json:"depth"`
		QuotedPrice     struct {
			BuyPrice  string `json:"buyPrice"`
			SellPrice string `json:"sellPrice"`
		} `json:"quotedPrice"`
	} `json:"extraInfo"`
}

func (e priceEntry) tokenPrice(mint string) (TokenPrice, bool) {
	if e.Price == "" {
		return TokenPrice{}, false
	}
	price, err := decimal.NewFromString(e.Price)
	if err != nil || price.IsZero() {
		return TokenPrice{}, false
	}

	result := TokenPrice{Mint: mint, Price: price, Confidence: ConfidenceMedium}
	if e.ExtraInfo != nil {
		if e.ExtraInfo.ConfidenceLevel != "" {
			result.Confidence = strings.ToLower(e.ExtraInfo.ConfidenceLevel)
		}
		if depth, err := decimal.NewFromString(e.ExtraInfo.DepthUSD); err == nil {
			result.Depth = depth
		}
	}
	return result, true
}

func chunk(mints []string, size int) [][]string {
	batches := make([][]string, 0, (len(mints)+size-1)/size)
	for start := 0; start < len(mints); start += size {
		end := start + size
		if end > len(mints) {
			end = len(mints)
		}
		batches = append(batches, mints[start:end])
	}
	return batches
}

var _ Source = (*Client)(nil)
