package executor

import "sync"

// resultLog is a bounded, append-only trade history. Once full, the oldest
// entry is evicted first.
type resultLog struct {
	mu    sync.Mutex
	buf   []TradeResult
	next  int
	count int
}

func newResultLog(capacity int) *resultLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &resultLog{buf: make([]TradeResult, capacity)}
}

func (l *resultLog) Append(result TradeResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = result
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Recent returns up to n results, newest first.
func (l *resultLog) Recent(n int) []TradeResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]TradeResult, 0, n)
	idx := l.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx += len(l.buf)
		}
		out = append(out, l.buf[idx])
		idx--
	}
	return out
}

func (l *resultLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
