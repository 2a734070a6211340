// Package config handles CartLens configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./cartlens.yaml, ~/.config/cartlens/config.yaml, /etc/cartlens/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"cartlens.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cartlens", "config.yaml"))
	}

	paths = append(paths, "/etc/cartlens/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all CartLens configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Store     StoreConfig     `yaml:"store"`
	Agent     AgentConfig     `yaml:"agent"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8311
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: claude-sonnet-4-20250514
}

// StoreConfig defines the remote dataset store.
type StoreConfig struct {
	// BaseURL is the root of the folder-like dataset store. The store
	// must expose a listing at BaseURL and raw content at BaseURL/<name>.
	BaseURL string `yaml:"base_url"`
	// Token is an optional bearer token for the store.
	Token string `yaml:"token"`
	// FetchTimeoutSec bounds a single fetch (default 30).
	FetchTimeoutSec int `yaml:"fetch_timeout_sec"`
	// MaxRetries bounds retry attempts on transient fetch failures (default 3).
	MaxRetries int `yaml:"max_retries"`
}

// AgentConfig defines per-session loop settings.
type AgentConfig struct {
	// TurnBudget is the maximum number of reasoning/tool cycles per user
	// message (default 8). Exhaustion aborts the turn with a visible
	// failure answer.
	TurnBudget int `yaml:"turn_budget"`
	// LLMTimeoutSec bounds a single completion call (default 120).
	LLMTimeoutSec int `yaml:"llm_timeout_sec"`
	// MaxHistoryMessages caps the per-session message log fed to the
	// model (default 200). Oldest non-system messages are dropped from
	// the serialized view; the log itself stays append-only.
	MaxHistoryMessages int `yaml:"max_history_messages"`
}

// ArtifactsConfig defines where rendered chart artifacts live.
type ArtifactsConfig struct {
	Dir    string `yaml:"dir"`     // Default: ./artifacts
	DBPath string `yaml:"db_path"` // Default: <dir>/artifacts.db
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Store.BaseURL == "" {
		return nil, fmt.Errorf("store.base_url is required")
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8311
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Store.FetchTimeoutSec <= 0 {
		c.Store.FetchTimeoutSec = 30
	}
	if c.Store.MaxRetries <= 0 {
		c.Store.MaxRetries = 3
	}
	if c.Agent.TurnBudget <= 0 {
		c.Agent.TurnBudget = 8
	}
	if c.Agent.LLMTimeoutSec <= 0 {
		c.Agent.LLMTimeoutSec = 120
	}
	if c.Agent.MaxHistoryMessages <= 0 {
		c.Agent.MaxHistoryMessages = 200
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
	if c.Artifacts.DBPath == "" {
		c.Artifacts.DBPath = filepath.Join(c.Artifacts.Dir, "artifacts.db")
	}
}

// FetchTimeout returns the store fetch timeout as a duration.
func (c *StoreConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// LLMTimeout returns the completion call timeout as a duration.
func (c *AgentConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}
