package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"soltrader/internal/executor"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertTradeSQL = `INSERT INTO trade_results (
        trade_seq,
        state,
        input_mint,
        output_mint,
        in_amount,
        out_amount,
        execution_price,
        slippage_pct,
        price_impact_pct,
        fee_amount,
        venues,
        signature,
        reason,
        executed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    );`

	listRecentTradesSQL = `SELECT
        id,
        trade_seq,
        state,
        input_mint,
        output_mint,
        in_amount,
        out_amount,
        execution_price,
        slippage_pct,
        price_impact_pct,
        fee_amount,
        venues,
        signature,
        reason,
        executed_at,
        created_at
    FROM trade_results
    ORDER BY executed_at DESC
    LIMIT $1;`

	listTradesBetweenSQL = `SELECT
        id,
        trade_seq,
        state,
        input_mint,
        output_mint,
        in_amount,
        out_amount,
        execution_price,
        slippage_pct,
        price_impact_pct,
        fee_amount,
        venues,
        signature,
        reason,
        executed_at,
        created_at
    FROM trade_results
    WHERE executed_at >= $1
      AND executed_at < $2
    ORDER BY executed_at;`

	countTradesSQL = `SELECT COUNT(*) FROM trade_results;`

	insertRiskAlertSQL = `INSERT INTO risk_alerts (
        kind,
        mint,
        entry_price,
        mark_price,
        change_pct,
        detail
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    ) RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        kind,
        mint,
        entry_price,
        mark_price,
        change_pct,
        detail,
        created_at
    FROM risk_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM risk_alerts WHERE created_at < $1;`
)

// TradeJournal persists trade execution results.
type TradeJournal interface {
	InsertTrade(ctx context.Context, result executor.TradeResult) error
	ListRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	ListTradesBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error)
	CountTrades(ctx context.Context) (int64, error)
}

// AlertStore persists emitted risk alerts.
type AlertStore interface {
	InsertRiskAlert(ctx context.Context, record RiskAlertRecord) (RiskAlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]RiskAlertRecord, error)
	PurgeAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store implements the trade journal and alert store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertTrade appends one execution result to the journal.
func (s *Store) InsertTrade(ctx context.Context, result executor.TradeResult) error {
	if s.pool == nil {
		return ErrNotConfigured
	}

	var reason *string
	if result.Reason != "" {
		reason = &result.Reason
	}

	_, err := s.pool.Exec(ctx, insertTradeSQL,
		int64(result.ID),
		result.State.String(),
		result.InputMint,
		result.OutputMint,
		int64(result.InAmount),
		int64(result.OutAmount),
		result.ExecutionPrice,
		result.SlippagePct,
		result.PriceImpactPct,
		int64(result.FeeAmount),
		result.Venues,
		result.Signature,
		reason,
		result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListRecentTrades returns the newest journal rows.
func (s *Store) ListRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, listRecentTradesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListTradesBetween returns journal rows in [from, to).
func (s *Store) ListTradesBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listTradesBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list trades between: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountTrades reports the journal size.
func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	if s.pool == nil {
		return 0, ErrNotConfigured
	}
	var count int64
	if err := s.pool.QueryRow(ctx, countTradesSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

// InsertRiskAlert records an emitted alert.
func (s *Store) InsertRiskAlert(ctx context.Context, record RiskAlertRecord) (RiskAlertRecord, error) {
	if s.pool == nil {
		return RiskAlertRecord{}, ErrNotConfigured
	}

	err := s.pool.QueryRow(ctx, insertRiskAlertSQL,
		record.Kind,
		record.Mint,
		record.EntryPrice,
		record.MarkPrice,
		record.ChangePct,
		record.Detail,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return RiskAlertRecord{}, fmt.Errorf("insert risk alert: %w", err)
	}
	return record, nil
}

// ListRecentAlerts returns the newest alert rows.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]RiskAlertRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	var out []RiskAlertRecord
	for rows.Next() {
		var record RiskAlertRecord
		if err := rows.Scan(
			&record.ID,
			&record.Kind,
			&record.Mint,
			&record.EntryPrice,
			&record.MarkPrice,
			&record.ChangePct,
			&record.Detail,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// PurgeAlertsBefore deletes alert rows older than the cutoff.
func (s *Store) PurgeAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.pool == nil {
		return 0, ErrNotConfigured
	}
	tag, err := s.pool.Exec(ctx, deleteAlertsBeforeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTrades(rows pgx.Rows) ([]TradeRecord, error) {
	var out []TradeRecord
	for rows.Next() {
		var record TradeRecord
		if err := rows.Scan(
			&record.ID,
			&record.TradeSeq,
			&record.State,
			&record.InputMint,
			&record.OutputMint,
			&record.InAmount,
			&record.OutAmount,
			&record.ExecutionPrice,
			&record.SlippagePct,
			&record.PriceImpactPct,
			&record.FeeAmount,
			&record.Venues,
			&record.Signature,
			&record.Reason,
			&record.ExecutedAt,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

var (
	_ TradeJournal     = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ executor.Journal = (*Store)(nil)
)
