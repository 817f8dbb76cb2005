package events

import "time"

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventCycleStarted   Event = "cycle.started"
	EventCycleCompleted Event = "cycle.completed"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderRejected  Event = "order.rejected"
	EventRiskAlert      Event = "risk_alert"
	EventAuthFailure    Event = "auth_failure"
)

// PriceTick is the payload for EventPriceTick.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// CycleUpdate is the payload for cycle start/completion events.
type CycleUpdate struct {
	AgentID     string
	CycleNumber int64
	Status      string
}

// OrderUpdate is the payload for order events.
type OrderUpdate struct {
	AgentID string
	Symbol  string
	Action  string
	OrderID int64
	Error   string
}

// RiskAlert is the payload for EventRiskAlert, raised when the daily
// circuit breaker trips or an auth failure aborts a cycle.
type RiskAlert struct {
	AgentID string
	Reason  string
	Detail  string
}
