// Package perf computes the trailing performance metrics fed back into
// the oracle prompt. All calculations are pure: the caller supplies the
// trade slice, nothing is read from storage or the clock.
package perf

import (
	"fmt"
	"math"
	"strings"
)

// DefaultLookback is the number of recent trades metrics run over.
const DefaultLookback = 20

// DefaultInitialEquity anchors the drawdown curve when no real starting
// balance is known.
const DefaultInitialEquity = 10000

// Trade is the minimal realized-trade view metrics need.
type Trade struct {
	Symbol string  `json:"symbol"`
	PnL    float64 `json:"pnl"`
}

// TradeRef names a single trade in the metrics output.
type TradeRef struct {
	Symbol string  `json:"symbol"`
	PnL    float64 `json:"pnl"`
}

// Metrics summarizes a window of realized trades.
//
// Conventions: ProfitFactor is +Inf for wins without losses and 0 when
// the window realized nothing either way; Sharpe is NaN when there are
// fewer than two trades or the returns do not vary, because "no
// information" and "riskless zero" are different answers.
type Metrics struct {
	TotalTrades    int       `json:"total_trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	WinRate        float64   `json:"win_rate"`
	AvgProfit      float64   `json:"avg_profit"`
	AvgLoss        float64   `json:"avg_loss"`
	ProfitFactor   float64   `json:"profit_factor"`
	Sharpe         float64   `json:"sharpe_ratio"`
	MaxDrawdown    float64   `json:"max_drawdown_pct"`
	MaxDrawdownUSD float64   `json:"max_drawdown_usd"`
	TotalPnL       float64   `json:"total_pnl"`
	Best           *TradeRef `json:"best_trade,omitempty"`
	Worst          *TradeRef `json:"worst_trade,omitempty"`
}

// Calculate runs the metrics over the most recent lookback trades.
// Trades are expected oldest first; initialEquity anchors the drawdown
// curve (zero means DefaultInitialEquity).
func Calculate(trades []Trade, lookback int, initialEquity float64) Metrics {
	var m Metrics
	if len(trades) == 0 {
		return m
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if initialEquity <= 0 {
		initialEquity = DefaultInitialEquity
	}
	if len(trades) > lookback {
		trades = trades[len(trades)-lookback:]
	}

	var totalProfit, totalLoss float64
	best, worst := trades[0], trades[0]
	for _, t := range trades {
		m.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			m.Wins++
			totalProfit += t.PnL
		case t.PnL < 0:
			m.Losses++
			totalLoss += -t.PnL
		}
		if t.PnL > best.PnL {
			best = t
		}
		if t.PnL < worst.PnL {
			worst = t
		}
	}
	m.TotalTrades = len(trades)
	m.WinRate = float64(m.Wins) / float64(m.TotalTrades) * 100
	if m.Wins > 0 {
		m.AvgProfit = totalProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = totalLoss / float64(m.Losses)
	}

	switch {
	case totalLoss > 0:
		m.ProfitFactor = totalProfit / totalLoss
	case totalProfit > 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}

	m.Sharpe = sharpe(trades)
	m.MaxDrawdown, m.MaxDrawdownUSD = maxDrawdown(trades, initialEquity)
	m.Best = &TradeRef{Symbol: best.Symbol, PnL: best.PnL}
	m.Worst = &TradeRef{Symbol: worst.Symbol, PnL: worst.PnL}
	return m
}

func sharpe(trades []Trade) float64 {
	if len(trades) < 2 {
		return math.NaN()
	}
	var mean float64
	for _, t := range trades {
		mean += t.PnL
	}
	mean /= float64(len(trades))

	var variance float64
	for _, t := range trades {
		d := t.PnL - mean
		variance += d * d
	}
	variance /= float64(len(trades))

	std := math.Sqrt(variance)
	if std == 0 {
		return math.NaN()
	}
	return mean / std
}

// maxDrawdown walks the equity curve and returns the largest
// peak-to-trough fall, as a percent of the peak and in dollars.
func maxDrawdown(trades []Trade, initial float64) (pct, usd float64) {
	equity := initial
	peak := initial
	for _, t := range trades {
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > usd {
			usd = dd
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > pct {
				pct = dd
			}
		}
	}
	return pct, usd
}

// Format renders metrics as prompt text.
func (m Metrics) Format() string {
	if m.TotalTrades == 0 {
		return "No trades yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Performance Summary (%d trades)**\n", m.TotalTrades)
	fmt.Fprintf(&b, "Win Rate: %.1f%% (%dW / %dL)\n", m.WinRate, m.Wins, m.Losses)
	fmt.Fprintf(&b, "Avg Profit: $%.2f | Avg Loss: $%.2f\n", m.AvgProfit, m.AvgLoss)
	if math.IsInf(m.ProfitFactor, 1) {
		b.WriteString("Profit Factor: inf\n")
	} else {
		fmt.Fprintf(&b, "Profit Factor: %.2f\n", m.ProfitFactor)
	}
	if !math.IsNaN(m.Sharpe) {
		fmt.Fprintf(&b, "Sharpe Ratio: %.2f\n", m.Sharpe)
	}
	fmt.Fprintf(&b, "Max Drawdown: %.2f%% ($%.2f)\n", m.MaxDrawdown, m.MaxDrawdownUSD)
	fmt.Fprintf(&b, "Total P/L: $%+.2f", m.TotalPnL)
	if m.Best != nil {
		fmt.Fprintf(&b, "\nBest: %s $%+.2f", m.Best.Symbol, m.Best.PnL)
	}
	if m.Worst != nil {
		fmt.Fprintf(&b, "\nWorst: %s $%+.2f", m.Worst.Symbol, m.Worst.PnL)
	}
	return b.String()
}
