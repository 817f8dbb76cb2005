package events

import "testing"

func TestBusFanOut(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe(EventCycleCompleted, 1)
	ch2, cancel2 := b.Subscribe(EventCycleCompleted, 1)
	defer cancel1()
	defer cancel2()

	b.Publish(EventCycleCompleted, CycleUpdate{AgentID: "a", CycleNumber: 1})

	for i, ch := range []<-chan any{ch1, ch2} {
		select {
		case got := <-ch:
			if got.(CycleUpdate).AgentID != "a" {
				t.Errorf("subscriber %d got %+v", i, got)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestBusSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(EventPriceTick, 1)
	defer cancel()

	b.Publish(EventPriceTick, PriceTick{Symbol: "BTCUSDT", Price: 1})
	b.Publish(EventPriceTick, PriceTick{Symbol: "BTCUSDT", Price: 2}) // buffer full, dropped

	got := (<-ch).(PriceTick)
	if got.Price != 1 {
		t.Errorf("price = %v, want first tick", got.Price)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestBusCancelIdempotent(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(EventRiskAlert, 1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Publishing to a topic with no subscribers must not panic.
	b.Publish(EventRiskAlert, RiskAlert{AgentID: "a"})
}
