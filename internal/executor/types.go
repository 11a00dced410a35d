package executor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeState is the lifecycle of a single trade.
type TradeState int

const (
	StatePending TradeState = iota
	StateSubmitted
	StateConfirmed
	StateFailed
)

func (s TradeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TradeResult is the append-only audit record of one execution attempt.
type TradeResult struct {
	ID             uint64
	State          TradeState
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	ExecutionPrice decimal.Decimal
	SlippagePct    decimal.Decimal
	PriceImpactPct decimal.Decimal
	FeeAmount      uint64
	Venues         []string
	Signature      string
	Reason         string
	Timestamp      time.Time
}

// TransactionError reports a failed trade. Failed transactions are never
// retried automatically.
type TransactionError struct {
	Stage     string
	Signature string
	Err       error
}

func (e *TransactionError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("executor: %s failed (sig %s): %v", e.Stage, e.Signature, e.Err)
	}
	return fmt.Sprintf("executor: %s failed: %v", e.Stage, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
