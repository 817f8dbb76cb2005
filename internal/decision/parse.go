package decision

import (
	"encoding/json"
	"strings"
)

// ParseProposals extracts the decision array from raw oracle output.
// The oracle is asked for a JSON array but routinely wraps it in prose or
// markdown fences, so we locate the outermost brackets ourselves. Entries
// that fail structural validation are downgraded to wait rather than
// dropped, so the journal still shows what the oracle asked for.
func ParseProposals(raw string) []Proposed {
	payload := ExtractPayload(raw)
	if payload == "" {
		return nil
	}

	var out []Proposed
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		// Some models emit a single object instead of an array.
		var one Proposed
		if err2 := json.Unmarshal([]byte(payload), &one); err2 != nil {
			return nil
		}
		out = []Proposed{one}
	}

	for i := range out {
		sanitize(&out[i])
	}
	return out
}

// ExtractPayload returns the JSON array (or object, when no array is
// present) embedded in raw. Prose may contain brackets of its own, so
// each candidate span is checked for JSON validity before later opening
// brackets are tried. Callers that split prose from payload should cut
// at this substring, not at the first bracket in the text.
func ExtractPayload(raw string) string {
	raw = strings.TrimSpace(raw)
	if p := scanPayload(raw, '[', ']'); p != "" {
		return p
	}
	if p := scanPayload(raw, '{', '}'); p != "" {
		return p
	}
	// Nothing validates; keep the widest span so the caller's error
	// handling sees what the oracle actually sent.
	if i := strings.IndexByte(raw, '['); i >= 0 {
		if j := strings.LastIndexByte(raw, ']'); j > i {
			return raw[i : j+1]
		}
	}
	if i := strings.IndexByte(raw, '{'); i >= 0 {
		if j := strings.LastIndexByte(raw, '}'); j > i {
			return raw[i : j+1]
		}
	}
	return ""
}

func scanPayload(raw string, open, end byte) string {
	j := strings.LastIndexByte(raw, end)
	for i := strings.IndexByte(raw, open); i >= 0 && i < j; {
		if candidate := raw[i : j+1]; json.Valid([]byte(candidate)) {
			return candidate
		}
		next := strings.IndexByte(raw[i+1:], open)
		if next < 0 {
			return ""
		}
		i += 1 + next
	}
	return ""
}

// sanitize downgrades a structurally invalid proposal to wait in place.
func sanitize(p *Proposed) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))

	switch p.Action {
	case ActionHold, ActionWait:
		return
	case ActionOpenLong, ActionOpenShort:
		if p.Symbol == "" || p.MarginUSD <= 0 || p.Leverage < 0 {
			demote(p)
		}
	case ActionCloseLong, ActionCloseShort:
		if p.Symbol == "" || p.CloseQuantity < 0 || p.CloseRatio < 0 || p.CloseRatio > 100 {
			demote(p)
		}
	default:
		demote(p)
	}
}

func demote(p *Proposed) {
	p.Action = ActionWait
	p.MarginUSD = 0
	p.CloseQuantity = 0
	p.CloseRatio = 0
	p.Leverage = 0
}
