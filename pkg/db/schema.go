package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS cycle_records (
    agent_id TEXT NOT NULL,
    cycle_number INTEGER NOT NULL,
    ts DATETIME NOT NULL,
    status TEXT NOT NULL,
    rationale TEXT,
    account_json TEXT,
    positions_json TEXT,
    decisions_json TEXT,
    executions_json TEXT,
    PRIMARY KEY (agent_id, cycle_number)
);

CREATE TABLE IF NOT EXISTS open_lots (
    agent_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity REAL NOT NULL,
    entry_price REAL NOT NULL,
    leverage INTEGER NOT NULL DEFAULT 1,
    opened_at DATETIME NOT NULL,
    PRIMARY KEY (agent_id, symbol, side)
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity REAL NOT NULL,
    entry_price REAL NOT NULL,
    close_price REAL NOT NULL,
    leverage INTEGER NOT NULL DEFAULT 1,
    pnl_usd REAL NOT NULL,
    pnl_pct REAL NOT NULL,
    opened_at DATETIME,
    closed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_agent_closed ON trades(agent_id, closed_at);

CREATE TABLE IF NOT EXISTS equity_history (
    agent_id TEXT NOT NULL,
    cycle_number INTEGER NOT NULL,
    ts DATETIME NOT NULL,
    equity REAL NOT NULL,
    unrealized_pnl REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (agent_id, cycle_number)
);
`

func (d *Database) applySchema() error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
