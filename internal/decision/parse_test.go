package decision

import "testing"

func TestParseProposalsExtractsArrayFromProse(t *testing.T) {
	raw := "Market looks weak, staying cautious.\n```json\n" +
		`[{"action":"open_long","symbol":"btcusdt","leverage":5,"position_size_usd":100,"reasoning":"bounce"}]` +
		"\n```\nThat is all."

	got := ParseProposals(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(got))
	}
	p := got[0]
	if p.Action != ActionOpenLong {
		t.Errorf("action = %q, want open_long", p.Action)
	}
	if p.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", p.Symbol)
	}
	if p.MarginUSD != 100 || p.Leverage != 5 {
		t.Errorf("margin/leverage = %v/%v, want 100/5", p.MarginUSD, p.Leverage)
	}
}

func TestParseProposalsSingleObject(t *testing.T) {
	got := ParseProposals(`{"action":"wait","reasoning":"no edge"}`)
	if len(got) != 1 || got[0].Action != ActionWait {
		t.Fatalf("expected single wait proposal, got %+v", got)
	}
}

func TestParseProposalsDowngradesInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown action", `[{"action":"yolo","symbol":"BTCUSDT"}]`},
		{"open without symbol", `[{"action":"open_long","position_size_usd":50}]`},
		{"open without margin", `[{"action":"open_short","symbol":"ETHUSDT"}]`},
		{"negative margin", `[{"action":"open_long","symbol":"ETHUSDT","position_size_usd":-5}]`},
		{"close ratio out of range", `[{"action":"close_long","symbol":"ETHUSDT","close_quantity_pct":150}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProposals(tt.raw)
			if len(got) != 1 {
				t.Fatalf("expected 1 proposal, got %d", len(got))
			}
			if got[0].Action != ActionWait {
				t.Errorf("action = %q, want wait", got[0].Action)
			}
			if got[0].MarginUSD != 0 {
				t.Errorf("margin not zeroed: %v", got[0].MarginUSD)
			}
		})
	}
}

func TestParseProposalsGarbage(t *testing.T) {
	for _, raw := range []string{"", "no json here", "[not json]"} {
		if got := ParseProposals(raw); got != nil {
			t.Errorf("ParseProposals(%q) = %+v, want nil", raw, got)
		}
	}
}

func TestExtractPayloadSkipsProseBrackets(t *testing.T) {
	array := `[{"action":"wait","reasoning":"chop"}]`
	raw := "Volume profile [thin above 51k] argues for patience.\n" + array
	if got := ExtractPayload(raw); got != array {
		t.Errorf("payload = %q, want %q", got, array)
	}

	got := ParseProposals(raw)
	if len(got) != 1 || got[0].Action != ActionWait {
		t.Fatalf("proposals = %+v, want single wait", got)
	}
}

func TestValidatedExecutable(t *testing.T) {
	open := Validated{Proposed: Proposed{Action: ActionOpenLong}, Quantity: 0.5}
	if !open.Executable() {
		t.Error("open with quantity should be executable")
	}
	open.Quantity = 0
	if open.Executable() {
		t.Error("open with zero quantity should not be executable")
	}
	skip := Validated{Proposed: Proposed{Action: ActionCloseLong}, Skipped: true}
	if skip.Executable() {
		t.Error("skipped decision should not be executable")
	}
	if (Validated{Proposed: Proposed{Action: ActionWait}}).Executable() {
		t.Error("wait should not be executable")
	}
}
