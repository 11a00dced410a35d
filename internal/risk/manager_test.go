package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soltrader/internal/alerting"
	"soltrader/internal/executor"
	"soltrader/internal/marketdata"
	"soltrader/internal/position"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, marketdata.ErrCacheMiss
	}
	return data, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type fakeCloser struct {
	mu     sync.Mutex
	err    error
	closed []uint64
	book   *position.Book
}

func (f *fakeCloser) Close(_ context.Context, pos position.Position) (*executor.TradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.closed = append(f.closed, pos.ID)
	if f.book != nil {
		f.book.Close(pos.ID)
	}
	return &executor.TradeResult{State: executor.StateConfirmed, Signature: "CloseSig"}, nil
}

type memNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (m *memNotifier) Notify(_ context.Context, note alerting.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, note)
	return nil
}

func (m *memNotifier) byKind(kind alerting.AlertKind) []alerting.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alerting.Notification
	for _, n := range m.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func newTestCache(t *testing.T) *marketdata.Cache {
	t.Helper()
	cache, err := marketdata.NewCache(newMemBackend(), marketdata.CacheOptions{}, zerolog.Nop())
	require.NoError(t, err)
	return cache
}

// setPrice stores a flat candle so Metrics reports the price with zero
// volatility contribution.
func setPrice(t *testing.T, cache *marketdata.Cache, mint string, price float64) {
	t.Helper()
	p := decimal.NewFromFloat(price)
	require.NoError(t, cache.Store(context.Background(), mint, marketdata.PricePoint{
		Open: p, High: p, Low: p, Close: p,
		Timestamp: time.Now(),
	}))
}

func openPosition(book *position.Book, mint string, entry float64) position.Position {
	e := decimal.NewFromFloat(entry)
	threshold := decimal.NewFromFloat(0.05)
	return book.Open(position.Position{
		Mint:              mint,
		QuoteMint:         "QuoteMint",
		EntryPrice:        e,
		CurrentPrice:      e,
		Size:              1_000_000,
		StopLossPrice:     e.Mul(decimal.NewFromInt(1).Sub(threshold)),
		StopLossThreshold: threshold,
		OpenedAt:          time.Now(),
	})
}

func TestTickClosesBreachedPosition(t *testing.T) {
	book := position.NewBook()
	cache := newTestCache(t)
	closer := &fakeCloser{book: book}
	notifier := &memNotifier{}
	m := NewManager(book, cache, closer, notifier, Options{}, zerolog.Nop())

	pos := openPosition(book, "BaseMint", 100)
	setPrice(t, cache, "BaseMint", 94)

	require.NoError(t, m.Tick(context.Background(), time.Now()))

	assert.Equal(t, []uint64{pos.ID}, closer.closed, "a 6 percent loss breaches the 5 percent stop")
	assert.Equal(t, 0, book.Len())

	notes := notifier.byKind(alerting.KindStopLoss)
	require.Len(t, notes, 1)
	assert.Equal(t, "BaseMint", notes[0].Mint)
}

func TestTickKeepsPositionWithinStop(t *testing.T) {
	book := position.NewBook()
	cache := newTestCache(t)
	closer := &fakeCloser{book: book}
	m := NewManager(book, cache, closer, nil, Options{}, zerolog.Nop())

	pos := openPosition(book, "BaseMint", 100)
	setPrice(t, cache, "BaseMint", 96)

	require.NoError(t, m.Tick(context.Background(), time.Now()))

	assert.Empty(t, closer.closed, "a 4 percent loss is inside the stop")
	assert.Equal(t, 1, book.Len())

	got, ok := book.Get(pos.ID)
	require.True(t, ok)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(96)), "tick should refresh the mark price")
}

func TestTickVolatilityWidensStop(t *testing.T) {
	book := position.NewBook()
	cache := newTestCache(t)
	closer := &fakeCloser{book: book}
	m := NewManager(book, cache, closer, nil, Options{}, zerolog.Nop())

	openPosition(book, "BaseMint", 100)

	// One wild candle: |94.5-85|/85 ~ 0.112 average volatility widens the
	// stop to 0.05 * 1.112 ~ 0.0556, above the 5.5 percent loss.
	require.NoError(t, cache.Store(context.Background(), "BaseMint", marketdata.PricePoint{
		Open:      decimal.NewFromInt(85),
		Close:     decimal.NewFromFloat(94.5),
		Timestamp: time.Now(),
	}))

	require.NoError(t, m.Tick(context.Background(), time.Now()))

	assert.Empty(t, closer.closed, "volatility-adjusted stop should tolerate the move")
	assert.Equal(t, 1, book.Len())
}

func TestTickSkipsWithoutPrice(t *testing.T) {
	book := position.NewBook()
	cache := newTestCache(t)
	closer := &fakeCloser{book: book}
	m := NewManager(book, cache, closer, nil, Options{}, zerolog.Nop())

	openPosition(book, "Unknown", 100)

	require.NoError(t, m.Tick(context.Background(), time.Now()))
	assert.Empty(t, closer.closed, "no market price means no stop-loss decision")
	assert.Equal(t, 1, book.Len())
}

func TestTickCloseFailureKeepsPositionAndAlerts(t *testing.T) {
	book := position.NewBook()
	cache := newTestCache(t)
	closer := &fakeCloser{err: errors.New("no route")}
	notifier := &memNotifier{}
	m := NewManager(book, cache, closer, notifier, Options{AlertAfterFailures: 3}, zerolog.Nop())

	openPosition(book, "BaseMint", 100)
	setPrice(t, cache, "BaseMint", 90)

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Tick(context.Background(), time.Now()))
	}
	assert.Equal(t, 1, book.Len(), "the position must stay open while closes fail")
	assert.Empty(t, notifier.byKind(alerting.KindStopLossCloseFailed), "two failures are below the alert bar")

	require.NoError(t, m.Tick(context.Background(), time.Now()))
	assert.Len(t, notifier.byKind(alerting.KindStopLossCloseFailed), 1, "the third consecutive failure escalates")

	// Recovery: once the close succeeds the failure streak clears.
	closer.mu.Lock()
	closer.err = nil
	closer.book = book
	closer.mu.Unlock()

	require.NoError(t, m.Tick(context.Background(), time.Now()))
	assert.Equal(t, 0, book.Len())
	assert.Len(t, notifier.byKind(alerting.KindStopLoss), 1)
}

func TestTickNonOverlapping(t *testing.T) {
	book := position.NewBook()
	cache := newTestCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &blockingCloser{started: started, release: release, book: book}
	m := NewManager(book, cache, blocking, nil, Options{}, zerolog.Nop())

	openPosition(book, "BaseMint", 100)
	setPrice(t, cache, "BaseMint", 90)

	done := make(chan error)
	go func() { done <- m.Tick(context.Background(), time.Now()) }()
	<-started

	// A tick while the first is in flight must be a no-op.
	require.NoError(t, m.Tick(context.Background(), time.Now()))
	assert.Equal(t, 1, blocking.calls(), "the overlapping tick must not evaluate positions")

	close(release)
	require.NoError(t, <-done)
}

type blockingCloser struct {
	mu      sync.Mutex
	count   int
	started chan struct{}
	release chan struct{}
	book    *position.Book
}

func (b *blockingCloser) Close(_ context.Context, pos position.Position) (*executor.TradeResult, error) {
	b.mu.Lock()
	b.count++
	first := b.count == 1
	b.mu.Unlock()

	if first {
		close(b.started)
		<-b.release
	}
	if b.book != nil {
		b.book.Close(pos.ID)
	}
	return &executor.TradeResult{State: executor.StateConfirmed, Signature: "Sig"}, nil
}

func (b *blockingCloser) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
