package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roma-trading/internal/risk"
)

// EquityPoint is one equity observation, taken once per cycle.
type EquityPoint struct {
	CycleNumber   int64     `json:"cycle_number"`
	Timestamp     time.Time `json:"timestamp"`
	Equity        float64   `json:"equity"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// RecordEquity stores the equity observed for a cycle. Replays of the
// same cycle number overwrite, so a retried journal write stays
// idempotent.
func (j *Journal) RecordEquity(ctx context.Context, agentID string, p EquityPoint) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	_, err := j.db.DB.ExecContext(ctx, `
		INSERT INTO equity_history (agent_id, cycle_number, ts, equity, unrealized_pnl)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, cycle_number) DO UPDATE SET
			ts = excluded.ts, equity = excluded.equity, unrealized_pnl = excluded.unrealized_pnl`,
		agentID, p.CycleNumber, p.Timestamp.UTC(), p.Equity, p.UnrealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("record equity for %s: %w", agentID, err)
	}
	return nil
}

// EquityHistory returns up to limit points, oldest first.
func (j *Journal) EquityHistory(ctx context.Context, agentID string, limit int) ([]EquityPoint, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := j.db.DB.QueryContext(ctx, `
		SELECT cycle_number, ts, equity, unrealized_pnl FROM (
			SELECT cycle_number, ts, equity, unrealized_pnl
			FROM equity_history WHERE agent_id = ?
			ORDER BY cycle_number DESC LIMIT ?
		) ORDER BY cycle_number`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("equity history for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.CycleNumber, &p.Timestamp, &p.Equity, &p.UnrealizedPnL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DayStats aggregates the current UTC day for the circuit breaker:
// realized PnL from trades closed today and the first equity point of
// the day as the starting balance.
func (j *Journal) DayStats(ctx context.Context, agentID string, now time.Time) (risk.DayStats, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)

	var stats risk.DayStats
	var realized sql.NullFloat64
	err := j.db.DB.QueryRowContext(ctx,
		`SELECT SUM(pnl_usd) FROM trades WHERE agent_id = ? AND closed_at >= ?`,
		agentID, dayStart,
	).Scan(&realized)
	if err != nil {
		return stats, fmt.Errorf("day pnl for %s: %w", agentID, err)
	}
	stats.RealizedPnL = realized.Float64

	var start sql.NullFloat64
	err = j.db.DB.QueryRowContext(ctx, `
		SELECT equity FROM equity_history
		WHERE agent_id = ? AND ts >= ?
		ORDER BY ts LIMIT 1`,
		agentID, dayStart,
	).Scan(&start)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("day start equity for %s: %w", agentID, err)
	}
	stats.StartBalance = start.Float64
	return stats, nil
}
