package risk

import "math"

// Config holds the risk limits applied to every oracle proposal.
// Percentage fields are expressed as whole percents (50 means 50%).
type Config struct {
	MaxPositions int `yaml:"max_positions" json:"max_positions"`
	MaxLeverage  int `yaml:"max_leverage" json:"max_leverage"`

	// MaxSingleTradePct caps one trade's margin as a share of available
	// balance when no positions are open; MaxSingleTradeHeldPct applies
	// once at least one position is held.
	MaxSingleTradePct     float64 `yaml:"max_single_trade_pct" json:"max_single_trade_pct"`
	MaxSingleTradeHeldPct float64 `yaml:"max_single_trade_with_positions_pct" json:"max_single_trade_with_positions_pct"`

	// MaxTotalExposurePct caps the sum of all position margins as a share
	// of total balance.
	MaxTotalExposurePct float64 `yaml:"max_total_position_pct" json:"max_total_position_pct"`

	// MaxPositionNotionalPct caps a single position's notional (margin
	// times leverage) as a share of total balance.
	MaxPositionNotionalPct float64 `yaml:"max_position_size_pct" json:"max_position_size_pct"`

	// MaxDailyLossPct trips the daily circuit breaker once realized losses
	// for the UTC day reach this share of the day's starting balance.
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct"`

	StopLossPct   float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
}

// DefaultConfig returns the limits used when an agent's config omits them.
func DefaultConfig() Config {
	return Config{
		MaxPositions:           3,
		MaxLeverage:            10,
		MaxSingleTradePct:      50,
		MaxSingleTradeHeldPct:  30,
		MaxTotalExposurePct:    80,
		MaxPositionNotionalPct: 200,
		MaxDailyLossPct:        10,
		StopLossPct:            5,
		TakeProfitPct:          10,
	}
}

// Position is an open perpetual position as seen by the risk engine.
type Position struct {
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Quantity         float64 `json:"quantity"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	Leverage         int     `json:"leverage"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	LiquidationPrice float64 `json:"liquidation_price,omitempty"`
}

// Margin returns the capital committed to the position.
func (p Position) Margin() float64 {
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	return math.Abs(p.Quantity) * p.EntryPrice / float64(lev)
}

// Account is the balance snapshot a validation pass runs against.
type Account struct {
	TotalBalance     float64    `json:"total_balance"`
	AvailableBalance float64    `json:"available_balance"`
	UnrealizedPnL    float64    `json:"unrealized_pnl"`
	Positions        []Position `json:"positions"`
}

// CommittedMargin sums the margin of all open positions.
func (a Account) CommittedMargin() float64 {
	var total float64
	for _, p := range a.Positions {
		total += p.Margin()
	}
	return total
}

// DayStats carries the current UTC day's realized results for the
// circuit breaker.
type DayStats struct {
	RealizedPnL  float64 `json:"realized_pnl"`
	StartBalance float64 `json:"start_balance"`
}

// Breached reports whether realized losses have reached the daily limit.
func (d DayStats) Breached(maxDailyLossPct float64) bool {
	if d.StartBalance <= 0 || maxDailyLossPct <= 0 {
		return false
	}
	return d.RealizedPnL <= -d.StartBalance*maxDailyLossPct/100
}

// SymbolFilter holds the venue's trading rules for one symbol.
type SymbolFilter struct {
	StepSize          float64
	TickSize          float64
	MinQuantity       float64
	QuantityPrecision int
	PricePrecision    int
}

// Input bundles everything Validate needs beyond the proposals themselves.
type Input struct {
	Account Account
	Day     DayStats
	// Prices maps symbol to current mark price.
	Prices map[string]float64
	// Filters maps symbol to its venue trading rules.
	Filters map[string]SymbolFilter
}
