package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"roma-trading/internal/risk"
)

// Store is the live configuration: the API reads from it and can adjust
// risk limits at runtime, agents snapshot from it each cycle. Writes
// persist back to the YAML file so restarts keep the adjusted limits.
//
// Saving writes the expanded document, so ${ENV_VAR} placeholders do not
// survive a runtime update. Deployments that template secrets should
// mount the config read-only.
type Store struct {
	mu   sync.RWMutex
	file *File
	path string
}

// NewStore wraps a loaded config file.
func NewStore(f *File, path string) *Store {
	return &Store{file: f, path: path}
}

// Server returns the server section.
func (s *Store) Server() ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Server
}

// Agents returns a copy of all agent entries.
func (s *Store) Agents() []AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentConfig, len(s.file.Agents))
	copy(out, s.file.Agents)
	return out
}

// Enabled returns the agents that should be running.
func (s *Store) Enabled() []AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Enabled()
}

// Agent returns one agent entry by id.
func (s *Store) Agent(id string) (AgentConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.file.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// Risk returns the current risk limits for an agent.
func (s *Store) Risk(agentID string) (risk.Config, bool) {
	a, ok := s.Agent(agentID)
	return a.Strategy.Risk, ok
}

// UpdateRisk replaces an agent's risk limits and persists the file.
// The new limits take effect on the agent's next cycle; a cycle already
// validating keeps the snapshot it started with.
func (s *Store) UpdateRisk(agentID string, cfg risk.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.file.Agents {
		if s.file.Agents[i].ID != agentID {
			continue
		}
		s.file.Agents[i].Strategy.Risk = cfg
		return s.saveLocked()
	}
	return fmt.Errorf("agent not found: %s", agentID)
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	out, err := yaml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
