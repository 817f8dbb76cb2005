package risk

import (
	"math"

	"roma-trading/internal/decision"
)

// Limit reasons recorded on validated decisions.
const (
	ReasonSingleTradeLimit = "single-trade-limit"
	ReasonTotalExposure    = "total-exposure-limit"
	ReasonPositionNotional = "position-notional-limit"
	ReasonDailyLossLimit   = "daily-loss-limit"
	ReasonMaxPositions     = "max-positions"
	ReasonBelowMinimum     = "below-minimum"
	ReasonNoPrice          = "no-price"
	ReasonInsufficientFree = "insufficient-margin"
)

// QuantityBuffer shaves the computed quantity before venue rounding so
// fees and price drift between validation and fill cannot push the order
// past the available margin.
const QuantityBuffer = 0.95

// minApprovedMargin is the smallest margin worth sending to the venue.
const minApprovedMargin = 0.1

// Validate applies the layered risk limits to a batch of proposals and
// returns one validated decision per proposal, in order. It is a pure
// function of its inputs: no I/O, no clock, no mutation of the account.
//
// Opens in the same batch share the exposure budget: each approval is
// added to the running committed margin before the next proposal is
// checked, so two opens cannot both claim the last slice of budget.
func Validate(proposals []decision.Proposed, in Input, cfg Config) []decision.Validated {
	out := make([]decision.Validated, 0, len(proposals))

	committed := in.Account.CommittedMargin()
	openCount := len(in.Account.Positions)
	breached := in.Day.Breached(cfg.MaxDailyLossPct)

	for _, p := range proposals {
		v := decision.Validated{Proposed: p}

		if !p.Action.IsOpen() {
			// Holds, waits and closes pass through untouched. Closes
			// reduce risk and are never blocked, breaker included.
			out = append(out, v)
			continue
		}

		v.RequestedMargin = p.MarginUSD

		if breached {
			v.Skipped = true
			v.LimitReason = ReasonDailyLossLimit
			out = append(out, v)
			continue
		}
		if cfg.MaxPositions > 0 && openCount >= cfg.MaxPositions {
			v.Skipped = true
			v.LimitReason = ReasonMaxPositions
			out = append(out, v)
			continue
		}

		lev := p.Leverage
		if lev < 1 {
			lev = 1
		}
		if cfg.MaxLeverage > 0 && lev > cfg.MaxLeverage {
			lev = cfg.MaxLeverage
		}
		v.Leverage = lev

		approved := p.MarginUSD

		// Layer 1: single-trade cap against available balance.
		tradePct := cfg.MaxSingleTradePct
		if openCount > 0 {
			tradePct = cfg.MaxSingleTradeHeldPct
		}
		if limit := in.Account.AvailableBalance * tradePct / 100; approved > limit {
			approved = limit
			v.LimitReason = ReasonSingleTradeLimit
		}

		// Layer 2: total exposure budget against total balance, shared
		// across the batch via the running committed total.
		budget := in.Account.TotalBalance * cfg.MaxTotalExposurePct / 100
		if committed+approved > budget {
			approved = budget - committed
			v.LimitReason = ReasonTotalExposure
		}
		if approved < minApprovedMargin {
			v.Skipped = true
			if v.LimitReason == "" {
				v.LimitReason = ReasonTotalExposure
			}
			v.ApprovedMargin = 0
			out = append(out, v)
			continue
		}

		// Layer 3: per-position notional cap.
		notionalCap := in.Account.TotalBalance * cfg.MaxPositionNotionalPct / 100
		if notional := approved * float64(lev); notionalCap > 0 && notional > notionalCap {
			approved = notionalCap / float64(lev)
			v.LimitReason = ReasonPositionNotional
		}

		price := in.Prices[p.Symbol]
		if price <= 0 {
			v.Skipped = true
			v.LimitReason = ReasonNoPrice
			out = append(out, v)
			continue
		}

		v.ApprovedMargin = approved
		v.EntryPrice = price
		v.StopLoss, v.TakeProfit = protectivePrices(p.Action, price, cfg)

		qty := approved * float64(lev) / price * QuantityBuffer
		filter, ok := in.Filters[p.Symbol]
		if ok {
			qty = FloorToStep(qty, filter.StepSize)
			if filter.MinQuantity > 0 && qty < filter.MinQuantity {
				// Too small for the venue. Skip rather than resize: the
				// oracle sees the skip reason next cycle and can ask for
				// more margin itself.
				v.Skipped = true
				v.LimitReason = ReasonBelowMinimum
				v.ApprovedMargin = 0
				out = append(out, v)
				continue
			}
		}
		if qty <= 0 {
			v.Skipped = true
			v.LimitReason = ReasonBelowMinimum
			v.ApprovedMargin = 0
			out = append(out, v)
			continue
		}

		// Re-verify margin for the rounded quantity. Rounding moves the
		// real margin requirement, and checking only the pre-rounding
		// number can pass a trade the venue will reject.
		finalMargin := qty * price / float64(lev)
		if finalMargin > in.Account.AvailableBalance {
			v.Skipped = true
			v.LimitReason = ReasonInsufficientFree
			v.Quantity = 0
			out = append(out, v)
			continue
		}

		v.Quantity = qty
		committed += approved
		openCount++
		out = append(out, v)
	}

	return out
}

func protectivePrices(a decision.Action, entry float64, cfg Config) (stop, take float64) {
	sl := cfg.StopLossPct / 100
	tp := cfg.TakeProfitPct / 100
	if sl <= 0 && tp <= 0 {
		return 0, 0
	}
	if a == decision.ActionOpenLong {
		return entry * (1 - sl), entry * (1 + tp)
	}
	return entry * (1 + sl), entry * (1 - tp)
}

// FloorToStep rounds qty down to a multiple of step. A zero step leaves
// the quantity untouched.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	steps := math.Floor(qty/step + 1e-9)
	return steps * step
}
