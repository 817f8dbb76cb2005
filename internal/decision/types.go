package decision

// Action enumerates the trade actions an oracle proposal may carry.
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
	ActionHold       Action = "hold"
	ActionWait       Action = "wait"
)

// IsOpen reports whether the action opens a new position.
func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// IsClose reports whether the action closes an existing position.
func (a Action) IsClose() bool {
	return a == ActionCloseLong || a == ActionCloseShort
}

// Side returns the position side the action refers to ("long" or "short"),
// or "" for hold/wait.
func (a Action) Side() string {
	switch a {
	case ActionOpenLong, ActionCloseLong:
		return "long"
	case ActionOpenShort, ActionCloseShort:
		return "short"
	}
	return ""
}

// Proposed is a single decision returned by the reasoning oracle. It is
// untrusted input: ParseProposals enforces structure before anything
// downstream sees it.
type Proposed struct {
	Action        Action  `json:"action"`
	Symbol        string  `json:"symbol"`
	Leverage      int     `json:"leverage,omitempty"`
	MarginUSD     float64 `json:"position_size_usd,omitempty"`
	CloseQuantity float64 `json:"close_quantity,omitempty"`
	CloseRatio    float64 `json:"close_quantity_pct,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// Validated is a Proposed decision after the risk engine has applied its
// limits. It keeps the originally requested margin alongside the approved
// one, and records which limit triggered any reduction or skip.
type Validated struct {
	Proposed

	RequestedMargin float64 `json:"requested_margin"`
	ApprovedMargin  float64 `json:"approved_margin"`
	// Quantity is the buffered, venue-rounded contract quantity to submit.
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	Skipped     bool   `json:"skipped,omitempty"`
	LimitReason string `json:"limit_reason,omitempty"`
}

// Executable reports whether the decision should reach the exchange.
func (v Validated) Executable() bool {
	if v.Skipped {
		return false
	}
	if v.Action.IsOpen() {
		return v.Quantity > 0
	}
	return v.Action.IsClose()
}
