// Package oracle calls the reasoning model that proposes trades. The
// model speaks an OpenAI-compatible chat API; its output is treated as
// untrusted text and parsed defensively.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"roma-trading/internal/decision"
)

// Config selects the model endpoint and sampling parameters.
type Config struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     time.Duration
}

// Proposal is one round of oracle output: the free-text rationale plus
// the structurally validated decisions extracted from it.
type Proposal struct {
	Rationale string
	Decisions []decision.Proposed
	Raw       string
}

// Client is a thin chat-completions client.
type Client struct {
	http *resty.Client
	cfg  Config
}

// New builds an oracle client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		http.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: http, cfg: cfg}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Propose sends one system and one user message and extracts the
// decision set from the reply. An empty or unparseable reply yields a
// proposal with no decisions, never an error: an inarticulate oracle is
// a wait, not a failure.
func (c *Client) Propose(ctx context.Context, systemPrompt, marketContext string) (*Proposal, error) {
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: marketContext},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oracle returned %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	if out.Error != nil {
		return nil, fmt.Errorf("oracle error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	content := out.Choices[0].Message.Content
	return &Proposal{
		Rationale: rationale(content),
		Decisions: decision.ParseProposals(content),
		Raw:       content,
	}, nil
}

// rationale is the prose before the JSON payload, trimmed of fences.
// The cut happens where the parsed payload begins, so bracketed asides
// in the prose survive.
func rationale(content string) string {
	cut := len(content)
	if payload := decision.ExtractPayload(content); payload != "" {
		if i := strings.Index(content, payload); i >= 0 {
			cut = i
		}
	}
	r := content[:cut]
	r = strings.TrimSuffix(strings.TrimSpace(r), "```json")
	r = strings.TrimSuffix(strings.TrimSpace(r), "```")
	return strings.TrimSpace(r)
}
