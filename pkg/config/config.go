// Package config loads the YAML agent configuration with environment
// overlays. Secrets never live in the YAML file itself: values may use
// ${ENV_VAR} placeholders resolved at load time, with .env honored for
// local development.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"roma-trading/internal/risk"
)

// ServerConfig drives the status API and shared infrastructure.
type ServerConfig struct {
	Port            string `yaml:"port"`
	AuthSecret      string `yaml:"auth_secret"`
	TokenExpMinutes int    `yaml:"token_exp_minutes"`
	DBPath          string `yaml:"db_path"`
}

// ExchangeConfig holds the venue account for one agent.
type ExchangeConfig struct {
	BaseURL       string `yaml:"base_url"`
	StreamURL     string `yaml:"stream_url"`
	UserAddress   string `yaml:"user_address"`
	SignerAddress string `yaml:"signer_address"`
	PrivateKey    string `yaml:"private_key"`
	HedgeMode     bool   `yaml:"hedge_mode"`
}

// LLMConfig selects the reasoning model for one agent.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// StrategyConfig holds pacing and risk parameters for one agent.
type StrategyConfig struct {
	ScanIntervalMinutes  int         `yaml:"scan_interval_minutes"`
	CycleTimeoutMinutes  int         `yaml:"cycle_timeout_minutes"`
	DefaultCoins         []string    `yaml:"default_coins"`
	InitialBalance       float64     `yaml:"initial_balance"`
	MaxAccountUsagePct   float64     `yaml:"max_account_usage_pct"`
	PerformanceLookback  int         `yaml:"performance_lookback"`
	Risk                 risk.Config `yaml:"risk_management"`
	CustomPromptAddition string      `yaml:"custom_prompt_addition"`
}

// AgentConfig is one agent entry.
type AgentConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Enabled  bool           `yaml:"enabled"`
	Exchange ExchangeConfig `yaml:"exchange"`
	LLM      LLMConfig      `yaml:"llm"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// File is the whole configuration document.
type File struct {
	Server ServerConfig  `yaml:"server"`
	Agents []AgentConfig `yaml:"agents"`
}

// ScanInterval returns the cycle period.
func (s StrategyConfig) ScanInterval() time.Duration {
	if s.ScanIntervalMinutes <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(s.ScanIntervalMinutes) * time.Minute
}

// CycleTimeout returns the per-cycle deadline. A cycle must finish well
// inside the scan interval, so the default tracks it.
func (s StrategyConfig) CycleTimeout() time.Duration {
	if s.CycleTimeoutMinutes <= 0 {
		return s.ScanInterval()
	}
	return time.Duration(s.CycleTimeoutMinutes) * time.Minute
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, env-expands and validates the configuration at path.
func Load(path string) (*File, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := envPattern.ReplaceAllStringFunc(string(raw), func(m string) string {
		name := envPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	f.applyDefaults()
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.Server.Port == "" {
		f.Server.Port = "8080"
	}
	if f.Server.TokenExpMinutes <= 0 {
		f.Server.TokenExpMinutes = 720
	}
	if f.Server.DBPath == "" {
		f.Server.DBPath = "./data/roma.db"
	}
	for i := range f.Agents {
		a := &f.Agents[i]
		if len(a.Strategy.DefaultCoins) == 0 {
			a.Strategy.DefaultCoins = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
		}
		if a.Strategy.MaxAccountUsagePct <= 0 {
			a.Strategy.MaxAccountUsagePct = 100
		}
		if a.Strategy.PerformanceLookback <= 0 {
			a.Strategy.PerformanceLookback = 20
		}
		if a.Strategy.Risk == (risk.Config{}) {
			a.Strategy.Risk = risk.DefaultConfig()
		}
	}
}

func (f *File) validate() error {
	seen := make(map[string]bool, len(f.Agents))
	for _, a := range f.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent without id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if !a.Enabled {
			continue
		}
		if a.Exchange.UserAddress == "" || a.Exchange.SignerAddress == "" || a.Exchange.PrivateKey == "" {
			return fmt.Errorf("agent %s: exchange credentials incomplete", a.ID)
		}
		if a.LLM.Model == "" {
			return fmt.Errorf("agent %s: llm model missing", a.ID)
		}
		if strings.TrimSpace(a.LLM.BaseURL) == "" {
			return fmt.Errorf("agent %s: llm base_url missing", a.ID)
		}
	}
	return nil
}

// Enabled returns the enabled agents.
func (f *File) Enabled() []AgentConfig {
	var out []AgentConfig
	for _, a := range f.Agents {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}
