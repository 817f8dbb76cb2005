package journal

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"roma-trading/internal/risk"
	"roma-trading/pkg/db"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database)
}

func record(agentID string, n int64, status string) CycleRecord {
	return CycleRecord{
		AgentID:     agentID,
		CycleNumber: n,
		Timestamp:   time.Now().UTC(),
		Status:      status,
		Account:     risk.Account{TotalBalance: 100, AvailableBalance: 80},
	}
}

func TestResumeNumberingFromLastCycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	last, err := j.LastCycleNumber(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if last != 0 {
		t.Errorf("fresh journal last cycle = %d, want 0", last)
	}

	for _, n := range []int64{1, 2, 3} {
		if err := j.Append(ctx, record("agent-1", n, StatusCompleted)); err != nil {
			t.Fatal(err)
		}
	}
	// Another agent's cycles must not leak into the numbering.
	if err := j.Append(ctx, record("agent-2", 50, StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	last, err = j.LastCycleNumber(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if last != 3 {
		t.Errorf("last cycle = %d, want 3", last)
	}
}

func TestMissingCyclesDetectsGaps(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, n := range []int64{1, 2, 5} {
		if err := j.Append(ctx, record("agent-1", n, StatusCompleted)); err != nil {
			t.Fatal(err)
		}
	}

	missing, err := j.MissingCycles(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if missing != 2 {
		t.Errorf("missing = %d, want 2 (cycles 3 and 4)", missing)
	}

	missing, err = j.MissingCycles(ctx, "agent-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if missing != 0 {
		t.Errorf("missing for unknown agent = %d, want 0", missing)
	}
}

func TestAppendRejectsDuplicateCycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.Append(ctx, record("agent-1", 7, StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	if err := j.Append(ctx, record("agent-1", 7, StatusFailed)); err == nil {
		t.Fatal("expected error appending duplicate cycle number")
	}
}

func TestRecentCyclesNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for n := int64(1); n <= 5; n++ {
		if err := j.Append(ctx, record("agent-1", n, StatusCompleted)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.RecentCycles(ctx, "agent-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].CycleNumber != 5 || got[2].CycleNumber != 3 {
		t.Errorf("recent cycles = %+v", got)
	}
	if got[0].Account.TotalBalance != 100 {
		t.Errorf("account not round-tripped: %+v", got[0].Account)
	}
}

func TestRecordCloseRealizesLeveragedPnL(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	err := j.RecordOpen(ctx, "agent-1", Lot{
		Symbol: "BTCUSDT", Side: "long", Quantity: 0.5, EntryPrice: 50000, Leverage: 10,
	})
	if err != nil {
		t.Fatal(err)
	}

	trade, err := j.RecordClose(ctx, "agent-1", "BTCUSDT", "long", 51000, 0)
	if err != nil {
		t.Fatal(err)
	}
	// (51000-50000) * 0.5 * 10
	if math.Abs(trade.PnLUSD-5000) > 1e-9 {
		t.Errorf("pnl = %v, want 5000", trade.PnLUSD)
	}
	if math.Abs(trade.PnLPct-2) > 1e-9 {
		t.Errorf("pnl pct = %v, want 2", trade.PnLPct)
	}

	// Lot fully closed.
	lots, err := j.OpenLots(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 0 {
		t.Errorf("open lots = %+v, want none", lots)
	}
}

func TestRecordClosePartialReducesLot(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	err := j.RecordOpen(ctx, "agent-1", Lot{
		Symbol: "ETHUSDT", Side: "short", Quantity: 2, EntryPrice: 3000, Leverage: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	trade, err := j.RecordClose(ctx, "agent-1", "ETHUSDT", "short", 2900, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	// Short gains when price drops: (3000-2900) * 0.5 * 5.
	if math.Abs(trade.PnLUSD-250) > 1e-9 {
		t.Errorf("pnl = %v, want 250", trade.PnLUSD)
	}

	lots, err := j.OpenLots(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 || math.Abs(lots[0].Quantity-1.5) > 1e-9 {
		t.Errorf("lots = %+v, want one lot of 1.5", lots)
	}
}

func TestRecordCloseWithoutLot(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.RecordClose(context.Background(), "agent-1", "BTCUSDT", "long", 50000, 0); err == nil {
		t.Fatal("expected error closing unknown lot")
	}
}

func TestDayStats(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := j.RecordEquity(ctx, "agent-1", EquityPoint{CycleNumber: 1, Timestamp: now, Equity: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordEquity(ctx, "agent-1", EquityPoint{CycleNumber: 2, Timestamp: now.Add(time.Minute), Equity: 950}); err != nil {
		t.Fatal(err)
	}

	if err := j.RecordOpen(ctx, "agent-1", Lot{Symbol: "BTCUSDT", Side: "long", Quantity: 1, EntryPrice: 100, Leverage: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := j.RecordClose(ctx, "agent-1", "BTCUSDT", "long", 50, 0); err != nil {
		t.Fatal(err)
	}

	stats, err := j.DayStats(ctx, "agent-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(stats.RealizedPnL-(-50)) > 1e-9 {
		t.Errorf("realized = %v, want -50", stats.RealizedPnL)
	}
	if stats.StartBalance != 1000 {
		t.Errorf("start balance = %v, want first equity of the day", stats.StartBalance)
	}
}

func TestTradeHistoryNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i, price := range []float64{101, 102, 103} {
		lot := Lot{Symbol: "BTCUSDT", Side: "long", Quantity: 1, EntryPrice: 100, Leverage: 1,
			OpenedAt: time.Now().Add(time.Duration(i) * time.Second)}
		if err := j.RecordOpen(ctx, "agent-1", lot); err != nil {
			t.Fatal(err)
		}
		if _, err := j.RecordClose(ctx, "agent-1", "BTCUSDT", "long", price, 0); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.TradeHistory(ctx, "agent-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("history = %d trades, want 2", len(got))
	}
	if got[0].ClosedAt.Before(got[1].ClosedAt) {
		t.Error("history not newest first")
	}
}
