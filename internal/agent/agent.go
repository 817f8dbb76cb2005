// Package agent runs the per-identity trading loop: fetch account and
// market state, ask the oracle for proposals, gate them through the
// risk engine, and commit approved orders under the shared trading
// lock. One Agent per configured identity; agents run concurrently and
// only serialize on the commit phase.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"roma-trading/internal/decision"
	"roma-trading/internal/events"
	"roma-trading/internal/indicators"
	"roma-trading/internal/journal"
	"roma-trading/internal/oracle"
	"roma-trading/internal/perf"
	"roma-trading/internal/risk"
	"roma-trading/internal/tradelock"
	"roma-trading/pkg/config"
	"roma-trading/pkg/exchange/aster"
	"roma-trading/pkg/exchange/common"
)

// State is where a cycle currently is. Exposed through Status for the
// API; transitions happen only inside the cycle goroutine.
type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateProposing    State = "proposing"
	StateValidating   State = "validating"
	StateAwaitingLock State = "awaiting-lock"
	StateCommitting   State = "committing"
	StateLogging      State = "logging"
)

// orderTimeout bounds a single submission once it leaves the cycle.
// An order already on the wire is tracked to completion on its own
// clock even when the cycle deadline has passed.
const orderTimeout = 30 * time.Second

// Venue is the signed exchange surface a cycle needs.
type Venue interface {
	Balance(ctx context.Context) (aster.Balance, error)
	Positions(ctx context.Context) ([]aster.Position, error)
	Price(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error)
	Precision(ctx context.Context, symbol string) (aster.Precision, error)
	OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (common.OrderResult, error)
	OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (common.OrderResult, error)
	ClosePosition(ctx context.Context, symbol, side string, quantity float64) (aster.CloseResult, error)
	PlaceProtectiveOrders(ctx context.Context, symbol, side string, quantity, entryPrice, takeProfitPct, stopLossPct float64) error
}

// Oracle proposes trades from a rules prompt and a market context.
type Oracle interface {
	Propose(ctx context.Context, systemPrompt, marketContext string) (*oracle.Proposal, error)
}

// Status is a point-in-time snapshot of an agent for the API.
type Status struct {
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	Running     bool      `json:"running"`
	State       State     `json:"state"`
	CycleNumber int64     `json:"cycle_number"`
	LastCycleAt time.Time `json:"last_cycle_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Agent drives the trading loop for one configured identity.
type Agent struct {
	cfg     config.AgentConfig
	store   *config.Store
	venue   Venue
	oracle  Oracle
	journal *journal.Journal
	lock    *tradelock.Lock
	bus     *events.Bus

	mu          sync.Mutex
	running     bool
	state       State
	cycle       int64
	lastCycleAt time.Time
	lastErr     string
}

// New wires an agent from its collaborators. The lock is shared across
// every agent trading the same underlying account.
func New(cfg config.AgentConfig, store *config.Store, venue Venue, oracle Oracle, j *journal.Journal, lock *tradelock.Lock, bus *events.Bus) *Agent {
	return &Agent{
		cfg:     cfg,
		store:   store,
		venue:   venue,
		oracle:  oracle,
		journal: j,
		lock:    lock,
		bus:     bus,
		state:   StateIdle,
	}
}

// ID returns the agent's configured identity.
func (a *Agent) ID() string { return a.cfg.ID }

// Status snapshots the agent's current state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		AgentID:     a.cfg.ID,
		Name:        a.cfg.Name,
		Running:     a.running,
		State:       a.state,
		CycleNumber: a.cycle,
		LastCycleAt: a.lastCycleAt,
		LastError:   a.lastErr,
	}
}

// Run executes cycles until ctx is cancelled, sleeping the scan
// interval between them. Cycle numbering resumes from the journal, so a
// restarted agent continues where it left off.
func (a *Agent) Run(ctx context.Context) error {
	last, err := a.journal.LastCycleNumber(ctx, a.cfg.ID)
	if err != nil {
		return fmt.Errorf("agent %s: resume cycle number: %w", a.cfg.ID, err)
	}
	if gaps, err := a.journal.MissingCycles(ctx, a.cfg.ID); err != nil {
		log.Printf("agent %s: gap check: %v", a.cfg.ID, err)
	} else if gaps > 0 {
		log.Printf("agent %s: journal has %d missing cycle(s), likely a crash mid-cycle", a.cfg.ID, gaps)
	}

	a.mu.Lock()
	a.cycle = last
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.state = StateIdle
		a.mu.Unlock()
	}()

	interval := a.cfg.Strategy.ScanInterval()
	log.Printf("agent %s: starting loop, interval=%s, next cycle=%d", a.cfg.ID, interval, last+1)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		a.RunCycle(ctx)
		timer.Reset(interval)
	}
}

// RunCycle executes exactly one cycle and always writes exactly one
// cycle record, whatever the outcome. Exported so the manager can
// trigger an immediate cycle and tests can drive the agent directly.
func (a *Agent) RunCycle(ctx context.Context) journal.CycleRecord {
	a.mu.Lock()
	a.cycle++
	n := a.cycle
	a.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, a.cfg.Strategy.CycleTimeout())
	defer cancel()

	a.bus.Publish(events.EventCycleStarted, events.CycleUpdate{
		AgentID:     a.cfg.ID,
		CycleNumber: n,
		Status:      "started",
	})

	rec := a.runCycle(cctx, n)

	a.setState(StateLogging)
	// The journal must not inherit a dead cycle context: a
	// deadline-exceeded cycle still gets its record.
	jctx, jcancel := context.WithTimeout(context.WithoutCancel(cctx), 10*time.Second)
	defer jcancel()
	if err := a.journal.Append(jctx, rec); err != nil {
		log.Printf("agent %s: journal write failed for cycle %d: %v", a.cfg.ID, n, err)
	}
	if rec.Account.TotalBalance > 0 {
		err := a.journal.RecordEquity(jctx, a.cfg.ID, journal.EquityPoint{
			CycleNumber:   n,
			Timestamp:     rec.Timestamp,
			Equity:        rec.Account.TotalBalance,
			UnrealizedPnL: rec.Account.UnrealizedPnL,
		})
		if err != nil {
			log.Printf("agent %s: equity write failed for cycle %d: %v", a.cfg.ID, n, err)
		}
	}

	a.mu.Lock()
	a.state = StateIdle
	a.lastCycleAt = time.Now().UTC()
	a.lastErr = ""
	if rec.Status == journal.StatusFailed {
		a.lastErr = rec.Rationale
		for _, e := range rec.Executions {
			if e.Error != "" {
				a.lastErr = e.Error
			}
		}
	}
	a.mu.Unlock()

	a.bus.Publish(events.EventCycleCompleted, events.CycleUpdate{
		AgentID:     a.cfg.ID,
		CycleNumber: n,
		Status:      rec.Status,
	})
	log.Printf("agent %s: cycle %d %s", a.cfg.ID, n, rec.Status)
	return rec
}

func (a *Agent) runCycle(ctx context.Context, n int64) journal.CycleRecord {
	rec := journal.CycleRecord{
		AgentID:     a.cfg.ID,
		CycleNumber: n,
		Timestamp:   time.Now().UTC(),
		Status:      journal.StatusCompleted,
	}

	a.setState(StateFetching)
	bal, err := a.venue.Balance(ctx)
	if err != nil {
		return a.failed(rec, fmt.Errorf("fetch balance: %w", err))
	}
	positions, err := a.venue.Positions(ctx)
	if err != nil {
		return a.failed(rec, fmt.Errorf("fetch positions: %w", err))
	}
	acct := accountSnapshot(bal, positions)
	rec.Account = acct

	day, err := a.journal.DayStats(ctx, a.cfg.ID, time.Now())
	if err != nil {
		log.Printf("agent %s: day stats: %v", a.cfg.ID, err)
		day = risk.DayStats{}
	}
	if day.StartBalance <= 0 {
		// No equity point yet today; the breaker measures against the
		// balance we start with.
		day.StartBalance = acct.TotalBalance
	}

	riskCfg, ok := a.store.Risk(a.cfg.ID)
	if !ok {
		riskCfg = a.cfg.Strategy.Risk
	}

	marketContext := a.marketContext(ctx, acct)

	a.setState(StateProposing)
	prop, err := a.oracle.Propose(ctx, systemPrompt(riskCfg, a.cfg.Strategy.CustomPromptAddition), marketContext)
	if err != nil {
		return a.failed(rec, fmt.Errorf("oracle: %w", err))
	}
	rec.Rationale = prop.Rationale

	a.setState(StateValidating)
	in, err := a.riskInput(ctx, acct, day, prop.Decisions)
	if err != nil {
		return a.failed(rec, err)
	}
	validated := risk.Validate(prop.Decisions, in, riskCfg)
	rec.Decisions = validated

	if day.Breached(riskCfg.MaxDailyLossPct) {
		a.bus.Publish(events.EventRiskAlert, events.RiskAlert{
			AgentID: a.cfg.ID,
			Reason:  risk.ReasonDailyLossLimit,
			Detail:  fmt.Sprintf("daily realized %.2f of start %.2f", day.RealizedPnL, day.StartBalance),
		})
	}

	executable := false
	for _, v := range validated {
		if v.Executable() {
			executable = true
			break
		}
	}
	if !executable {
		rec.Status = journal.StatusSkipped
		return rec
	}

	a.setState(StateAwaitingLock)
	release, err := a.lock.Acquire(ctx)
	if err != nil {
		rec.Status = journal.StatusDeadline
		return rec
	}
	defer release()

	a.setState(StateCommitting)
	a.commit(ctx, validated, acct, riskCfg, &rec)
	return rec
}

// commit submits every executable decision in oracle order. Errors on
// one decision do not stop the rest; auth failures abort the cycle.
func (a *Agent) commit(ctx context.Context, validated []decision.Validated, acct risk.Account, riskCfg risk.Config, rec *journal.CycleRecord) {
	for _, d := range validated {
		if !d.Executable() {
			continue
		}
		if ctx.Err() != nil {
			rec.Status = journal.StatusDeadline
			return
		}

		// Each submission gets a detached deadline so an in-flight
		// order is not torn down by the cycle expiring under it.
		octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orderTimeout)
		var exec journal.Execution
		var abort bool
		if d.Action.IsOpen() {
			exec, abort = a.executeOpen(octx, d, riskCfg)
		} else {
			exec, abort = a.executeClose(octx, d, acct)
		}
		cancel()

		rec.Executions = append(rec.Executions, exec)
		if abort {
			rec.Status = journal.StatusFailed
			return
		}
	}
}

func (a *Agent) executeOpen(ctx context.Context, d decision.Validated, riskCfg risk.Config) (journal.Execution, bool) {
	exec := journal.Execution{
		Symbol:   d.Symbol,
		Action:   string(d.Action),
		Quantity: d.Quantity,
	}

	var res common.OrderResult
	var err error
	if d.Action == decision.ActionOpenLong {
		res, err = a.venue.OpenLong(ctx, d.Symbol, d.Quantity, d.Leverage)
	} else {
		res, err = a.venue.OpenShort(ctx, d.Symbol, d.Quantity, d.Leverage)
	}
	if err != nil {
		return a.orderError(exec, d, err)
	}

	exec.OrderID = res.OrderID
	exec.Status = string(res.Status)
	exec.Price = res.Price
	exec.LatencyMS = res.Latency.Milliseconds()

	side := d.Action.Side()
	lot := journal.Lot{
		Symbol:     d.Symbol,
		Side:       side,
		Quantity:   d.Quantity,
		EntryPrice: d.EntryPrice,
		Leverage:   d.Leverage,
		OpenedAt:   time.Now().UTC(),
	}
	if err := a.journal.RecordOpen(ctx, a.cfg.ID, lot); err != nil {
		log.Printf("agent %s: record open lot %s %s: %v", a.cfg.ID, d.Symbol, side, err)
	}
	if err := a.venue.PlaceProtectiveOrders(ctx, d.Symbol, side, d.Quantity, d.EntryPrice, riskCfg.TakeProfitPct, riskCfg.StopLossPct); err != nil {
		log.Printf("agent %s: protective orders %s %s: %v", a.cfg.ID, d.Symbol, side, err)
	}

	a.bus.Publish(events.EventOrderSubmitted, events.OrderUpdate{
		AgentID: a.cfg.ID,
		Symbol:  d.Symbol,
		Action:  string(d.Action),
		OrderID: res.OrderID,
	})
	return exec, false
}

func (a *Agent) executeClose(ctx context.Context, d decision.Validated, acct risk.Account) (journal.Execution, bool) {
	exec := journal.Execution{
		Symbol: d.Symbol,
		Action: string(d.Action),
	}
	side := d.Action.Side()

	qty := d.CloseQuantity
	if qty <= 0 && d.CloseRatio > 0 {
		for _, p := range acct.Positions {
			if p.Symbol == d.Symbol && p.Side == side {
				qty = p.Quantity * d.CloseRatio / 100
				break
			}
		}
	}

	res, err := a.venue.ClosePosition(ctx, d.Symbol, side, qty)
	if err != nil {
		return a.orderError(exec, d, err)
	}

	exec.OrderID = res.Order.OrderID
	exec.Status = string(res.Order.Status)
	exec.Quantity = res.ClosedQuantity
	exec.Price = res.Price
	exec.LatencyMS = res.Order.Latency.Milliseconds()

	trade, err := a.journal.RecordClose(ctx, a.cfg.ID, d.Symbol, side, res.Price, res.ClosedQuantity)
	switch {
	case errors.Is(err, journal.ErrNoLot):
		log.Printf("agent %s: close %s %s has no tracked lot", a.cfg.ID, d.Symbol, side)
	case err != nil:
		log.Printf("agent %s: record close %s %s: %v", a.cfg.ID, d.Symbol, side, err)
	default:
		exec.PnL = trade.PnLUSD
	}

	a.bus.Publish(events.EventOrderSubmitted, events.OrderUpdate{
		AgentID: a.cfg.ID,
		Symbol:  d.Symbol,
		Action:  string(d.Action),
		OrderID: res.Order.OrderID,
	})
	return exec, false
}

// orderError records a per-decision failure. Auth errors abort the
// whole cycle; everything else is terminal for this decision only.
func (a *Agent) orderError(exec journal.Execution, d decision.Validated, err error) (journal.Execution, bool) {
	exec.Status = "error"
	exec.Error = err.Error()
	log.Printf("agent %s: %s %s failed: %v", a.cfg.ID, d.Action, d.Symbol, err)

	a.bus.Publish(events.EventOrderRejected, events.OrderUpdate{
		AgentID: a.cfg.ID,
		Symbol:  d.Symbol,
		Action:  string(d.Action),
		Error:   err.Error(),
	})
	if aster.IsAuthError(err) {
		a.bus.Publish(events.EventAuthFailure, events.RiskAlert{
			AgentID: a.cfg.ID,
			Reason:  "auth-failure",
			Detail:  err.Error(),
		})
		return exec, true
	}
	return exec, false
}

// riskInput assembles prices and venue filters for the validation pass.
// Held positions contribute their mark price; other proposal symbols
// are quoted live. A symbol whose price or filter cannot be fetched is
// simply absent, which the engine treats as unpriceable and skips.
func (a *Agent) riskInput(ctx context.Context, acct risk.Account, day risk.DayStats, proposals []decision.Proposed) (risk.Input, error) {
	prices := make(map[string]float64)
	filters := make(map[string]risk.SymbolFilter)
	for _, p := range acct.Positions {
		prices[p.Symbol] = p.MarkPrice
	}
	for _, d := range proposals {
		if !d.Action.IsOpen() || d.Symbol == "" {
			continue
		}
		if _, ok := prices[d.Symbol]; !ok {
			price, err := a.venue.Price(ctx, d.Symbol)
			if err != nil {
				log.Printf("agent %s: price %s: %v", a.cfg.ID, d.Symbol, err)
				continue
			}
			prices[d.Symbol] = price
		}
		if _, ok := filters[d.Symbol]; !ok {
			prec, err := a.venue.Precision(ctx, d.Symbol)
			if err != nil {
				log.Printf("agent %s: precision %s: %v", a.cfg.ID, d.Symbol, err)
				continue
			}
			filters[d.Symbol] = risk.SymbolFilter{
				StepSize:          prec.StepSize,
				TickSize:          prec.TickSize,
				MinQuantity:       prec.MinQuantity,
				QuantityPrecision: prec.QuantityPrecision,
				PricePrecision:    prec.PricePrecision,
			}
		}
	}
	return risk.Input{Account: acct, Day: day, Prices: prices, Filters: filters}, nil
}

// marketContext builds the user-message half of the oracle call:
// account snapshot, recent performance, open positions and indicator
// snapshots for every coin in play.
func (a *Agent) marketContext(ctx context.Context, acct risk.Account) string {
	var b strings.Builder

	usagePct := a.cfg.Strategy.MaxAccountUsagePct
	if usagePct <= 0 || usagePct > 100 {
		usagePct = 100
	}
	budget := acct.AvailableBalance * usagePct / 100

	b.WriteString("**Account:**\n")
	fmt.Fprintf(&b, "Available for Trading: $%.2f <- USE THIS FOR DECISIONS\n", budget)
	if usagePct < 100 {
		fmt.Fprintf(&b, "(Limited to %.0f%% of $%.2f for multi-agent)\n", usagePct, acct.AvailableBalance)
	}
	fmt.Fprintf(&b, "Total Balance: $%.2f\n", acct.TotalBalance)
	fmt.Fprintf(&b, "Unrealized P/L: $%+.2f\n\n", acct.UnrealizedPnL)

	if m := a.performance(ctx); m.TotalTrades > 0 {
		b.WriteString(m.Format())
		b.WriteString("\n\n")
	}

	if len(acct.Positions) > 0 {
		b.WriteString("**Current Positions:**\n")
		for _, p := range acct.Positions {
			pnlPct := 0.0
			if p.EntryPrice > 0 {
				pnlPct = (p.MarkPrice - p.EntryPrice) / p.EntryPrice * 100
				if p.Side == "short" {
					pnlPct = -pnlPct
				}
			}
			fmt.Fprintf(&b, "- %s %s: Entry $%.2f, Current $%.2f, P/L %+.2f%%\n",
				p.Symbol, strings.ToUpper(p.Side), p.EntryPrice, p.MarkPrice, pnlPct)
		}
		b.WriteString("\n")
	}

	b.WriteString("**Market Data:**\n")
	for _, symbol := range a.watchedSymbols(acct) {
		fast, slow, err := a.fetchSnapshots(ctx, symbol)
		if err != nil {
			log.Printf("agent %s: market data %s: %v", a.cfg.ID, symbol, err)
			continue
		}
		b.WriteString(indicators.Format(symbol, fast, slow))
		b.WriteString("\n")
	}
	return b.String()
}

// watchedSymbols is the configured coin list plus anything currently held.
func (a *Agent) watchedSymbols(acct risk.Account) []string {
	symbols := make([]string, 0, len(a.cfg.Strategy.DefaultCoins)+len(acct.Positions))
	seen := make(map[string]bool)
	for _, s := range a.cfg.Strategy.DefaultCoins {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for _, p := range acct.Positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	return symbols
}

func (a *Agent) fetchSnapshots(ctx context.Context, symbol string) (indicators.Snapshot, indicators.Snapshot, error) {
	fastCandles, err := a.venue.Klines(ctx, symbol, "3m", 100)
	if err != nil {
		return indicators.Snapshot{}, indicators.Snapshot{}, err
	}
	slowCandles, err := a.venue.Klines(ctx, symbol, "4h", 100)
	if err != nil {
		return indicators.Snapshot{}, indicators.Snapshot{}, err
	}
	return indicators.Analyze(fastCandles, "3m"), indicators.Analyze(slowCandles, "4h"), nil
}

func (a *Agent) performance(ctx context.Context) perf.Metrics {
	lookback := a.cfg.Strategy.PerformanceLookback
	if lookback <= 0 {
		lookback = perf.DefaultLookback
	}
	trades, err := a.journal.TradeHistory(ctx, a.cfg.ID, lookback)
	if err != nil {
		log.Printf("agent %s: trade history: %v", a.cfg.ID, err)
		return perf.Metrics{}
	}
	// History is newest first; metrics want chronological order.
	ordered := make([]perf.Trade, len(trades))
	for i, t := range trades {
		ordered[len(trades)-1-i] = perf.Trade{Symbol: t.Symbol, PnL: t.PnLUSD}
	}
	initial := a.cfg.Strategy.InitialBalance
	if initial <= 0 {
		initial = perf.DefaultInitialEquity
	}
	return perf.Calculate(ordered, lookback, initial)
}

func (a *Agent) failed(rec journal.CycleRecord, err error) journal.CycleRecord {
	log.Printf("agent %s: cycle %d failed: %v", a.cfg.ID, rec.CycleNumber, err)
	rec.Status = journal.StatusFailed
	rec.Rationale = err.Error()
	return rec
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// accountSnapshot maps the venue view onto the risk engine's account type.
func accountSnapshot(bal aster.Balance, positions []aster.Position) risk.Account {
	acct := risk.Account{
		TotalBalance:     bal.TotalBalance,
		AvailableBalance: bal.AvailableBalance,
		UnrealizedPnL:    bal.UnrealizedPnL,
	}
	for _, p := range positions {
		acct.Positions = append(acct.Positions, risk.Position{
			Symbol:           p.Symbol,
			Side:             p.Side,
			Quantity:         p.Quantity,
			EntryPrice:       p.EntryPrice,
			MarkPrice:        p.MarkPrice,
			Leverage:         p.Leverage,
			UnrealizedPnL:    p.UnrealizedPnL,
			LiquidationPrice: p.LiquidationPrice,
		})
	}
	return acct
}
