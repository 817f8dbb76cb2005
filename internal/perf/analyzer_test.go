package perf

import (
	"math"
	"strings"
	"testing"
)

func TestCalculateBasicMetrics(t *testing.T) {
	trades := []Trade{
		{Symbol: "BTCUSDT", PnL: 100},
		{Symbol: "ETHUSDT", PnL: -50},
		{Symbol: "BTCUSDT", PnL: 30},
		{Symbol: "SOLUSDT", PnL: -10},
	}
	m := Calculate(trades, 20, 1000)

	if m.TotalTrades != 4 || m.Wins != 2 || m.Losses != 2 {
		t.Errorf("counts = %d/%d/%d", m.TotalTrades, m.Wins, m.Losses)
	}
	if m.WinRate != 50 {
		t.Errorf("win rate = %v, want 50", m.WinRate)
	}
	if m.AvgProfit != 65 || m.AvgLoss != 30 {
		t.Errorf("avg profit/loss = %v/%v, want 65/30", m.AvgProfit, m.AvgLoss)
	}
	if math.Abs(m.ProfitFactor-130.0/60.0) > 1e-9 {
		t.Errorf("profit factor = %v", m.ProfitFactor)
	}
	if m.TotalPnL != 70 {
		t.Errorf("total pnl = %v, want 70", m.TotalPnL)
	}
	if m.Best.Symbol != "BTCUSDT" || m.Best.PnL != 100 {
		t.Errorf("best = %+v", m.Best)
	}
	if m.Worst.Symbol != "ETHUSDT" || m.Worst.PnL != -50 {
		t.Errorf("worst = %+v", m.Worst)
	}
}

func TestProfitFactorConventions(t *testing.T) {
	onlyWins := Calculate([]Trade{{PnL: 10}, {PnL: 5}}, 20, 0)
	if !math.IsInf(onlyWins.ProfitFactor, 1) {
		t.Errorf("profit factor with no losses = %v, want +Inf", onlyWins.ProfitFactor)
	}

	flat := Calculate([]Trade{{PnL: 0}, {PnL: 0}}, 20, 0)
	if flat.ProfitFactor != 0 {
		t.Errorf("profit factor with nothing realized = %v, want 0", flat.ProfitFactor)
	}
}

func TestSharpeUndefinedIsNaN(t *testing.T) {
	one := Calculate([]Trade{{PnL: 10}}, 20, 0)
	if !math.IsNaN(one.Sharpe) {
		t.Errorf("sharpe with one trade = %v, want NaN", one.Sharpe)
	}

	constant := Calculate([]Trade{{PnL: 5}, {PnL: 5}, {PnL: 5}}, 20, 0)
	if !math.IsNaN(constant.Sharpe) {
		t.Errorf("sharpe with zero variance = %v, want NaN", constant.Sharpe)
	}

	varied := Calculate([]Trade{{PnL: 10}, {PnL: -5}, {PnL: 7}}, 20, 0)
	if math.IsNaN(varied.Sharpe) {
		t.Error("sharpe with varied returns should be defined")
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Equity from 1000: 1100, 1050, 900, 1200. Peak 1100, trough 900.
	trades := []Trade{{PnL: 100}, {PnL: -50}, {PnL: -150}, {PnL: 300}}
	m := Calculate(trades, 20, 1000)

	want := (1100.0 - 900.0) / 1100.0 * 100
	if math.Abs(m.MaxDrawdown-want) > 1e-9 {
		t.Errorf("max drawdown = %v, want %v", m.MaxDrawdown, want)
	}
	if math.Abs(m.MaxDrawdownUSD-200) > 1e-9 {
		t.Errorf("max drawdown usd = %v, want 200", m.MaxDrawdownUSD)
	}

	up := Calculate([]Trade{{PnL: 10}, {PnL: 20}}, 20, 1000)
	if up.MaxDrawdown != 0 || up.MaxDrawdownUSD != 0 {
		t.Errorf("drawdown in monotonic rise = %v%% ($%v), want 0", up.MaxDrawdown, up.MaxDrawdownUSD)
	}
}

func TestLookbackWindow(t *testing.T) {
	trades := make([]Trade, 30)
	for i := range trades {
		trades[i] = Trade{PnL: -1} // old losers
	}
	for i := 25; i < 30; i++ {
		trades[i] = Trade{PnL: 10} // recent winners
	}

	m := Calculate(trades, 5, 0)
	if m.TotalTrades != 5 || m.Losses != 0 {
		t.Errorf("lookback not applied: %+v", m)
	}
}

func TestCalculateEmpty(t *testing.T) {
	m := Calculate(nil, 20, 0)
	if m.TotalTrades != 0 || m.Best != nil || m.Worst != nil {
		t.Errorf("empty metrics = %+v", m)
	}
	if got := m.Format(); got != "No trades yet." {
		t.Errorf("format = %q", got)
	}
}

func TestFormatOmitsUndefinedSharpe(t *testing.T) {
	m := Calculate([]Trade{{Symbol: "BTCUSDT", PnL: 10}}, 20, 0)
	got := m.Format()
	if strings.Contains(got, "Sharpe") {
		t.Errorf("undefined sharpe should be omitted:\n%s", got)
	}
	if !strings.Contains(got, "Performance Summary (1 trades)") {
		t.Errorf("missing header:\n%s", got)
	}
}
