// Package journal is the append-only record of everything an agent did:
// one record per cycle, plus the lot ledger and trade history derived
// from fills. Records are never updated in place. A journal write
// failure is logged by the caller and must not fail the cycle; by then
// the orders are already on the venue.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"roma-trading/internal/decision"
	"roma-trading/internal/risk"
	"roma-trading/pkg/db"
)

// Cycle statuses.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusDeadline  = "deadline-exceeded"
)

// Execution is the outcome of one decision sent to the venue.
type Execution struct {
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"`
	OrderID   int64   `json:"order_id,omitempty"`
	Status    string  `json:"status"`
	Quantity  float64 `json:"quantity,omitempty"`
	Price     float64 `json:"price,omitempty"`
	PnL       float64 `json:"pnl,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMS int64   `json:"latency_ms,omitempty"`
}

// CycleRecord is one full cycle: what the agent saw, what the oracle
// proposed, what risk approved, and what the venue did.
type CycleRecord struct {
	AgentID     string               `json:"agent_id"`
	CycleNumber int64                `json:"cycle_number"`
	Timestamp   time.Time            `json:"timestamp"`
	Status      string               `json:"status"`
	Rationale   string               `json:"rationale,omitempty"`
	Account     risk.Account         `json:"account"`
	Decisions   []decision.Validated `json:"decisions,omitempty"`
	Executions  []Execution          `json:"executions,omitempty"`
}

// Journal persists cycle records and derived trading history.
type Journal struct {
	db *db.Database
}

// New wraps an open database.
func New(database *db.Database) *Journal {
	return &Journal{db: database}
}

// Append writes one cycle record.
func (j *Journal) Append(ctx context.Context, rec CycleRecord) error {
	accountJSON, err := json.Marshal(rec.Account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	positionsJSON, err := json.Marshal(rec.Account.Positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	decisionsJSON, err := json.Marshal(rec.Decisions)
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}
	executionsJSON, err := json.Marshal(rec.Executions)
	if err != nil {
		return fmt.Errorf("marshal executions: %w", err)
	}

	_, err = j.db.DB.ExecContext(ctx, `
		INSERT INTO cycle_records
			(agent_id, cycle_number, ts, status, rationale, account_json, positions_json, decisions_json, executions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.CycleNumber, rec.Timestamp.UTC(), rec.Status, rec.Rationale,
		string(accountJSON), string(positionsJSON), string(decisionsJSON), string(executionsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert cycle %d for %s: %w", rec.CycleNumber, rec.AgentID, err)
	}
	return nil
}

// LastCycleNumber returns the highest recorded cycle for the agent, or 0.
// Restarted agents resume numbering from here.
func (j *Journal) LastCycleNumber(ctx context.Context, agentID string) (int64, error) {
	var last sql.NullInt64
	err := j.db.DB.QueryRowContext(ctx,
		`SELECT MAX(cycle_number) FROM cycle_records WHERE agent_id = ?`, agentID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last cycle for %s: %w", agentID, err)
	}
	return last.Int64, nil
}

// MissingCycles counts gaps in the agent's cycle numbering. Gaps are
// reported, not repaired: a hole usually means a crash mid-cycle and the
// record is honest about it.
func (j *Journal) MissingCycles(ctx context.Context, agentID string) (int64, error) {
	var count, max sql.NullInt64
	err := j.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(cycle_number) FROM cycle_records WHERE agent_id = ?`, agentID,
	).Scan(&count, &max)
	if err != nil {
		return 0, fmt.Errorf("count cycles for %s: %w", agentID, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64 - count.Int64, nil
}

// RecentCycles returns up to limit records, newest first.
func (j *Journal) RecentCycles(ctx context.Context, agentID string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.DB.QueryContext(ctx, `
		SELECT agent_id, cycle_number, ts, status, rationale, account_json, decisions_json, executions_json
		FROM cycle_records WHERE agent_id = ?
		ORDER BY cycle_number DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent cycles for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec                                   CycleRecord
			accountJSON, decisionsJSON, execsJSON sql.NullString
			rationale                             sql.NullString
		)
		if err := rows.Scan(&rec.AgentID, &rec.CycleNumber, &rec.Timestamp, &rec.Status,
			&rationale, &accountJSON, &decisionsJSON, &execsJSON); err != nil {
			return nil, err
		}
		rec.Rationale = rationale.String
		if accountJSON.Valid {
			_ = json.Unmarshal([]byte(accountJSON.String), &rec.Account)
		}
		if decisionsJSON.Valid {
			_ = json.Unmarshal([]byte(decisionsJSON.String), &rec.Decisions)
		}
		if execsJSON.Valid {
			_ = json.Unmarshal([]byte(execsJSON.String), &rec.Executions)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
