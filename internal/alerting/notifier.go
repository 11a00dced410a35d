package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AlertKind classifies a notification.
type AlertKind string

const (
	KindStopLoss            AlertKind = "stop_loss"
	KindStopLossCloseFailed AlertKind = "stop_loss_close_failed"
	KindArbitrage           AlertKind = "arbitrage"
)

// Notification carries the context of a trade event.
type Notification struct {
	Kind        AlertKind
	Mint        string
	BaseMint    string
	QuoteMint   string
	EntryPrice  decimal.Decimal
	MarkPrice   decimal.Decimal
	ChangePct   decimal.Decimal
	ProfitRatio decimal.Decimal
	BuyVenue    string
	SellVenue   string
	Detail      string
	At          time.Time
}

// Notifier dispatches trade notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify posts the rendered message via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().Str("kind", string(note.Kind)).Str("mint", note.Mint).Msg("alert dispatched")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	switch note.Kind {
	case KindStopLoss:
		builder.WriteString("[Stop-Loss Triggered]\n")
		builder.WriteString(fmt.Sprintf("Token: %s\n", note.Mint))
		builder.WriteString(fmt.Sprintf("Entry: %s\n", note.EntryPrice.StringFixed(6)))
		builder.WriteString(fmt.Sprintf("Mark: %s\n", note.MarkPrice.StringFixed(6)))
		builder.WriteString(fmt.Sprintf("Change: %s%%\n", note.ChangePct.StringFixed(2)))
	case KindStopLossCloseFailed:
		builder.WriteString("[Stop-Loss Close FAILED]\n")
		builder.WriteString(fmt.Sprintf("Token: %s\n", note.Mint))
		builder.WriteString(fmt.Sprintf("Entry: %s\n", note.EntryPrice.StringFixed(6)))
		builder.WriteString(fmt.Sprintf("Mark: %s\n", note.MarkPrice.StringFixed(6)))
		builder.WriteString("Position remains open and at risk.\n")
	case KindArbitrage:
		builder.WriteString("[Arbitrage Opportunity]\n")
		builder.WriteString(fmt.Sprintf("Pair: %s / %s\n", note.BaseMint, note.QuoteMint))
		builder.WriteString(fmt.Sprintf("Buy: %s, Sell: %s\n", note.BuyVenue, note.SellVenue))
		builder.WriteString(fmt.Sprintf("Profit ratio: %s\n", note.ProfitRatio.StringFixed(4)))
	default:
		builder.WriteString("[Trade Alert]\n")
	}
	if !note.At.IsZero() {
		builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	}
	if note.Detail != "" {
		builder.WriteString(note.Detail)
	}
	return builder.String()
}

// Multi fans a notification out to every notifier. All notifiers are
// attempted even when one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (Multi)(nil)
)
