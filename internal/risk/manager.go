package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"soltrader/internal/alerting"
	"soltrader/internal/executor"
	"soltrader/internal/marketdata"
	"soltrader/internal/position"
)

// PositionCloser executes the closing trade for a position.
type PositionCloser interface {
	Close(ctx context.Context, pos position.Position) (*executor.TradeResult, error)
}

// Options tune the risk manager.
type Options struct {
	// AlertAfterFailures escalates a stuck close to the notifier once it
	// has failed this many consecutive ticks.
	AlertAfterFailures int
}

// Manager re-evaluates open positions against volatility-adjusted
// stop-loss thresholds on every tick and closes the ones that breach. A
// failed close keeps the position open and is retried next tick; that is
// a surfaced failure mode, not a silent one.
type Manager struct {
	book     *position.Book
	cache    *marketdata.Cache
	closer   PositionCloser
	notifier alerting.Notifier
	opts     Options
	logger   zerolog.Logger

	ticking       atomic.Bool
	mu            sync.Mutex
	closeFailures map[uint64]int
}

// NewManager constructs a risk manager.
func NewManager(book *position.Book, cache *marketdata.Cache, closer PositionCloser, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Manager {
	if opts.AlertAfterFailures <= 0 {
		opts.AlertAfterFailures = 3
	}
	return &Manager{
		book:          book,
		cache:         cache,
		closer:        closer,
		notifier:      notifier,
		opts:          opts,
		logger:        logger.With().Str("component", "risk_manager").Logger(),
		closeFailures: make(map[uint64]int),
	}
}

// Tick scans all open positions once. Overlapping ticks are skipped so a
// position can never be considered for closure twice concurrently.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	if !m.ticking.CompareAndSwap(false, true) {
		m.logger.Warn().Msg("previous risk tick still running, skipping")
		return nil
	}
	defer m.ticking.Store(false)

	for _, pos := range m.book.List() {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.evaluate(ctx, pos, now)
	}
	return nil
}

func (m *Manager) evaluate(ctx context.Context, pos position.Position, now time.Time) {
	metrics, err := m.cache.Metrics(ctx, pos.Mint)
	if err != nil || metrics.Price.IsZero() {
		m.logger.Debug().Uint64("position_id", pos.ID).Str("mint", pos.Mint).Msg("no current price, skipping position")
		return
	}
	current := metrics.Price
	m.book.UpdatePrice(pos.ID, current, now)

	vol, _, err := m.cache.AverageVolatility(ctx, pos.Mint)
	if err != nil {
		vol = decimal.Zero
	}
	// Volatile tokens get a wider stop so routine noise does not force an
	// exit: adjusted = base * (1 + avgVolatility).
	adjusted := pos.StopLossThreshold.Mul(decimal.NewFromInt(1).Add(vol))

	loss := current.Sub(pos.EntryPrice).Div(pos.EntryPrice)
	if loss.Abs().LessThan(adjusted) {
		return
	}

	m.logger.Info().
		Uint64("position_id", pos.ID).
		Str("mint", pos.Mint).
		Str("entry", pos.EntryPrice.String()).
		Str("current", current.String()).
		Str("loss", loss.String()).
		Str("adjusted_stop", adjusted.String()).
		Msg("stop-loss breached, closing position")

	pos.CurrentPrice = current
	result, err := m.closer.Close(ctx, pos)
	if err != nil {
		m.recordCloseFailure(ctx, pos, err)
		return
	}

	m.mu.Lock()
	delete(m.closeFailures, pos.ID)
	m.mu.Unlock()

	if m.notifier != nil {
		note := alerting.Notification{
			Kind:       alerting.KindStopLoss,
			Mint:       pos.Mint,
			EntryPrice: pos.EntryPrice,
			MarkPrice:  current,
			ChangePct:  loss.Mul(decimal.NewFromInt(100)),
			Detail:     "position closed, signature " + result.Signature,
			At:         now,
		}
		if err := m.notifier.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Msg("failed to dispatch stop-loss notification")
		}
	}
}

func (m *Manager) recordCloseFailure(ctx context.Context, pos position.Position, closeErr error) {
	m.mu.Lock()
	m.closeFailures[pos.ID]++
	failures := m.closeFailures[pos.ID]
	m.mu.Unlock()

	m.logger.Error().Err(closeErr).
		Uint64("position_id", pos.ID).
		Int("consecutive_failures", failures).
		Msg("stop-loss close failed, position remains open and at risk")

	if m.notifier != nil && failures >= m.opts.AlertAfterFailures {
		note := alerting.Notification{
			Kind:       alerting.KindStopLossCloseFailed,
			Mint:       pos.Mint,
			EntryPrice: pos.EntryPrice,
			MarkPrice:  pos.CurrentPrice,
			Detail:     closeErr.Error(),
			At:         time.Now().UTC(),
		}
		if err := m.notifier.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Msg("failed to dispatch close-failure alert")
		}
	}
}
