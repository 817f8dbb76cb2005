// Package monitor turns bus events that need an operator's attention
// into alert messages: tripped daily-loss breakers and authentication
// failures. Delivery is pluggable; the default sink is the process log.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"roma-trading/internal/events"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the standard logger.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("[ALERT] %s", message)
	return nil
}

// Monitor watches alert events and forwards them to the sink.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	if m.Sink == nil {
		m.Sink = LogSink{}
	}

	risks, unsubRisks := m.Bus.Subscribe(events.EventRiskAlert, 50)
	auth, unsubAuth := m.Bus.Subscribe(events.EventAuthFailure, 50)
	go func() {
		defer unsubRisks()
		defer unsubAuth()
		for {
			var msg any
			var ok bool
			select {
			case <-ctx.Done():
				return
			case msg, ok = <-risks:
			case msg, ok = <-auth:
			}
			if !ok {
				return
			}
			if err := m.Sink.Send(formatAlert(msg)); err != nil {
				log.Printf("alert delivery failed: %v", err)
			}
		}
	}()
}

func formatAlert(msg any) string {
	ts := time.Now().Format(time.RFC3339)
	if a, ok := msg.(events.RiskAlert); ok {
		return fmt.Sprintf("[%s] agent %s: %s: %s", ts, a.AgentID, a.Reason, a.Detail)
	}
	return fmt.Sprintf("[%s] alert triggered", ts)
}
