package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is a persisted trade execution audit row.
type TradeRecord struct {
	ID             int64
	TradeSeq       int64
	State          string
	InputMint      string
	OutputMint     string
	InAmount       int64
	OutAmount      int64
	ExecutionPrice decimal.Decimal
	SlippagePct    decimal.Decimal
	PriceImpactPct decimal.Decimal
	FeeAmount      int64
	Venues         []string
	Signature      string
	Reason         *string
	ExecutedAt     time.Time
	CreatedAt      time.Time
}

// RiskAlertRecord captures an emitted stop-loss alert for auditing.
type RiskAlertRecord struct {
	ID         int64
	Kind       string
	Mint       string
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
	ChangePct  decimal.Decimal
	Detail     string
	CreatedAt  time.Time
}
