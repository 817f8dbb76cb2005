package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"roma-trading/internal/events"
	"roma-trading/internal/journal"
	"roma-trading/internal/oracle"
	"roma-trading/internal/tradelock"
	"roma-trading/pkg/config"
	"roma-trading/pkg/exchange/aster"
)

// Manager owns every enabled agent and the one trading lock they share.
type Manager struct {
	agents map[string]*Agent
	order  []string
	lock   *tradelock.Lock

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager builds agents for every enabled entry in the store. All
// agents share one lock because they may draw on the same venue
// account; fetch and propose still run concurrently.
func NewManager(store *config.Store, j *journal.Journal, bus *events.Bus) (*Manager, error) {
	m := &Manager{
		agents: make(map[string]*Agent),
		lock:   tradelock.New(),
	}
	for _, ac := range store.Enabled() {
		venue, err := aster.NewClient(aster.Config{
			BaseURL:       ac.Exchange.BaseURL,
			UserAddress:   ac.Exchange.UserAddress,
			SignerAddress: ac.Exchange.SignerAddress,
			PrivateKey:    ac.Exchange.PrivateKey,
			HedgeMode:     ac.Exchange.HedgeMode,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		llm := oracle.New(oracle.Config{
			BaseURL:     ac.LLM.BaseURL,
			APIKey:      ac.LLM.APIKey,
			Model:       ac.LLM.Model,
			Temperature: ac.LLM.Temperature,
			MaxTokens:   ac.LLM.MaxTokens,
			Timeout:     time.Duration(ac.LLM.TimeoutSeconds) * time.Second,
		})
		m.agents[ac.ID] = New(ac, store, venue, llm, j, m.lock, bus)
		m.order = append(m.order, ac.ID)
	}
	return m, nil
}

// StartAll launches every agent loop. Idempotent: a second call while
// running is a no-op.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group

	for _, id := range m.order {
		a := m.agents[id]
		group.Go(func() error {
			err := a.Run(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	log.Printf("manager: started %d agent(s)", len(m.order))
}

// StopAll cancels every agent loop and waits for them to drain.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cancel, group := m.cancel, m.group
	m.cancel, m.group = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if err := group.Wait(); err != nil {
		log.Printf("manager: shutdown: %v", err)
	}
	log.Printf("manager: stopped")
}

// Agent returns one managed agent by id.
func (m *Manager) Agent(id string) (*Agent, bool) {
	a, ok := m.agents[id]
	return a, ok
}

// Status snapshots one agent by id.
func (m *Manager) Status(id string) (Status, bool) {
	a, ok := m.agents[id]
	if !ok {
		return Status{}, false
	}
	return a.Status(), true
}

// Statuses snapshots every agent in configuration order.
func (m *Manager) Statuses() []Status {
	out := make([]Status, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.agents[id].Status())
	}
	return out
}
