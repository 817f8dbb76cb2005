package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Lot is an open position as the journal tracked it at open time. Entry
// price and leverage come from our own fills, not from the venue, so
// realized PnL stays consistent with what the agent actually did.
type Lot struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   int       `json:"leverage"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Trade is a realized (possibly partial) close of a lot.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ClosePrice float64   `json:"close_price"`
	Leverage   int       `json:"leverage"`
	PnLUSD     float64   `json:"pnl_usd"`
	PnLPct     float64   `json:"pnl_pct"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// ErrNoLot is returned when a close has no matching open lot.
var ErrNoLot = errors.New("no open lot")

// RecordOpen upserts the lot for (symbol, side). A re-open on top of an
// existing lot replaces it, matching what the venue does to entry price
// in one-way position mode.
func (j *Journal) RecordOpen(ctx context.Context, agentID string, lot Lot) error {
	if lot.OpenedAt.IsZero() {
		lot.OpenedAt = time.Now().UTC()
	}
	_, err := j.db.DB.ExecContext(ctx, `
		INSERT INTO open_lots (agent_id, symbol, side, quantity, entry_price, leverage, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, symbol, side) DO UPDATE SET
			quantity = excluded.quantity,
			entry_price = excluded.entry_price,
			leverage = excluded.leverage,
			opened_at = excluded.opened_at`,
		agentID, lot.Symbol, lot.Side, lot.Quantity, lot.EntryPrice, lot.Leverage, lot.OpenedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record open %s %s: %w", lot.Symbol, lot.Side, err)
	}
	return nil
}

// RecordClose realizes PnL for closing quantity of the (symbol, side)
// lot at closePrice. A zero quantity closes the whole lot. The lot is
// reduced or removed and the trade is appended to history.
func (j *Journal) RecordClose(ctx context.Context, agentID, symbol, side string, closePrice, quantity float64) (Trade, error) {
	var lot Lot
	err := j.db.DB.QueryRowContext(ctx, `
		SELECT symbol, side, quantity, entry_price, leverage, opened_at
		FROM open_lots WHERE agent_id = ? AND symbol = ? AND side = ?`,
		agentID, symbol, side,
	).Scan(&lot.Symbol, &lot.Side, &lot.Quantity, &lot.EntryPrice, &lot.Leverage, &lot.OpenedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, fmt.Errorf("%w for %s %s", ErrNoLot, symbol, side)
	}
	if err != nil {
		return Trade{}, fmt.Errorf("load lot %s %s: %w", symbol, side, err)
	}

	closeQty := lot.Quantity
	if quantity > 0 {
		closeQty = math.Min(quantity, lot.Quantity)
	}
	if closeQty <= 0 || lot.EntryPrice <= 0 {
		return Trade{}, fmt.Errorf("close quantity and entry price must be positive for %s %s", symbol, side)
	}

	var pnlPct, pnlUSD float64
	if side == "long" {
		pnlPct = (closePrice - lot.EntryPrice) / lot.EntryPrice * 100
		pnlUSD = (closePrice - lot.EntryPrice) * closeQty * float64(lot.Leverage)
	} else {
		pnlPct = (lot.EntryPrice - closePrice) / lot.EntryPrice * 100
		pnlUSD = (lot.EntryPrice - closePrice) * closeQty * float64(lot.Leverage)
	}

	trade := Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   closeQty,
		EntryPrice: lot.EntryPrice,
		ClosePrice: closePrice,
		Leverage:   lot.Leverage,
		PnLUSD:     pnlUSD,
		PnLPct:     pnlPct,
		OpenedAt:   lot.OpenedAt,
		ClosedAt:   time.Now().UTC(),
	}

	tx, err := j.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return Trade{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (id, agent_id, symbol, side, quantity, entry_price, close_price, leverage, pnl_usd, pnl_pct, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, agentID, trade.Symbol, trade.Side, trade.Quantity, trade.EntryPrice,
		trade.ClosePrice, trade.Leverage, trade.PnLUSD, trade.PnLPct, trade.OpenedAt, trade.ClosedAt,
	)
	if err != nil {
		return Trade{}, fmt.Errorf("insert trade: %w", err)
	}

	remaining := lot.Quantity - closeQty
	if remaining <= 1e-9 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM open_lots WHERE agent_id = ? AND symbol = ? AND side = ?`,
			agentID, symbol, side)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE open_lots SET quantity = ? WHERE agent_id = ? AND symbol = ? AND side = ?`,
			remaining, agentID, symbol, side)
	}
	if err != nil {
		return Trade{}, fmt.Errorf("update lot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Trade{}, err
	}
	return trade, nil
}

// OpenLots returns the agent's tracked lots.
func (j *Journal) OpenLots(ctx context.Context, agentID string) ([]Lot, error) {
	rows, err := j.db.DB.QueryContext(ctx, `
		SELECT symbol, side, quantity, entry_price, leverage, opened_at
		FROM open_lots WHERE agent_id = ? ORDER BY opened_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("open lots for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []Lot
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.Symbol, &lot.Side, &lot.Quantity, &lot.EntryPrice, &lot.Leverage, &lot.OpenedAt); err != nil {
			return nil, err
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

// TradeHistory returns up to limit realized trades, newest first.
func (j *Journal) TradeHistory(ctx context.Context, agentID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.DB.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, entry_price, close_price, leverage, pnl_usd, pnl_pct, opened_at, closed_at
		FROM trades WHERE agent_id = ?
		ORDER BY closed_at DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("trade history for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var opened sql.NullTime
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice, &t.ClosePrice,
			&t.Leverage, &t.PnLUSD, &t.PnLPct, &opened, &t.ClosedAt); err != nil {
			return nil, err
		}
		t.OpenedAt = opened.Time
		out = append(out, t)
	}
	return out, rows.Err()
}
