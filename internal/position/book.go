package position

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open holding tracked for stop-loss monitoring. A position
// exists in exactly one of {open, closed}; closing removes it from the
// book atomically.
type Position struct {
	ID                uint64
	Mint              string
	QuoteMint         string
	EntryPrice        decimal.Decimal
	CurrentPrice      decimal.Decimal
	Size              uint64
	StopLossPrice     decimal.Decimal
	StopLossThreshold decimal.Decimal
	OpenedAt          time.Time
	LastUpdate        time.Time
}

// Book is an arena-style store of open positions: stable id to struct,
// with a secondary index by mint. Callers receive copies; all mutation
// goes through the book.
type Book struct {
	mu     sync.RWMutex
	seq    uint64
	open   map[uint64]*Position
	byMint map[string][]uint64
}

// NewBook constructs an empty position book.
func NewBook() *Book {
	return &Book{
		open:   make(map[uint64]*Position),
		byMint: make(map[string][]uint64),
	}
}

// Open registers a new position and assigns its id.
func (b *Book) Open(p Position) Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	p.ID = b.seq
	stored := p
	b.open[p.ID] = &stored
	b.byMint[p.Mint] = append(b.byMint[p.Mint], p.ID)
	return p
}

// Get returns a copy of the position, if open.
func (b *Book) Get(id uint64) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.open[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// List returns copies of all open positions.
func (b *Book) List() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.open))
	for _, p := range b.open {
		out = append(out, *p)
	}
	return out
}

// ByMint returns copies of open positions holding the given mint.
func (b *Book) ByMint(mint string) []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.byMint[mint]
	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		if p, ok := b.open[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// UpdatePrice refreshes the position's current price.
func (b *Book) UpdatePrice(id uint64, price decimal.Decimal, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.open[id]
	if !ok {
		return false
	}
	p.CurrentPrice = price
	p.LastUpdate = now
	return true
}

// Close removes the position from the open set and returns its final
// state. A second Close of the same id reports false.
func (b *Book) Close(id uint64) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.open[id]
	if !ok {
		return Position{}, false
	}
	delete(b.open, id)

	ids := b.byMint[p.Mint]
	for i, candidate := range ids {
		if candidate == id {
			b.byMint[p.Mint] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(b.byMint[p.Mint]) == 0 {
		delete(b.byMint, p.Mint)
	}
	return *p, true
}

// Len reports the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.open)
}
