package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"roma-trading/internal/decision"
)

func TestProposeParsesDecisions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		content := "BTC momentum turning up, opening a small long.\n" +
			`[{"action":"open_long","symbol":"BTCUSDT","leverage":5,"position_size_usd":100}]`
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	got, err := c.Propose(context.Background(), "you are a trader", "BTC at 50000")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Decisions) != 1 || got.Decisions[0].Action != decision.ActionOpenLong {
		t.Fatalf("decisions = %+v", got.Decisions)
	}
	if got.Rationale != "BTC momentum turning up, opening a small long." {
		t.Errorf("rationale = %q", got.Rationale)
	}
}

func TestProposeSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model"})
	if _, err := c.Propose(context.Background(), "sys", "ctx"); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestProposeUnparseableContentIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "I cannot decide right now."}},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model"})
	got, err := c.Propose(context.Background(), "sys", "ctx")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Decisions) != 0 {
		t.Errorf("decisions = %+v, want none", got.Decisions)
	}
}

func TestRationaleKeepsBracketedProse(t *testing.T) {
	content := "RSI at 24 [deeply oversold], expecting a bounce.\n" +
		`[{"action":"open_long","symbol":"BTCUSDT","leverage":3,"position_size_usd":50}]`

	want := "RSI at 24 [deeply oversold], expecting a bounce."
	if got := rationale(content); got != want {
		t.Errorf("rationale = %q, want %q", got, want)
	}

	if got := rationale("no payload at all"); got != "no payload at all" {
		t.Errorf("rationale without payload = %q", got)
	}
}
