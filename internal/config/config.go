// Package config provides configuration for the task agent. Values layer as
// defaults, then an optional YAML file, then POSTHOG_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file, resolved against the repo root.
const ConfigFileName = ".posthog.yaml"

// APIConfig locates the remote task/run store.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// GatewayConfig is the LLM gateway the agent process talks through. It is
// handed to the agent as explicit environment pairs; the orchestrator never
// mutates its own process environment.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// AgentConfig controls the agent CLI invocation.
type AgentConfig struct {
	Path     string `yaml:"path"`
	Model    string `yaml:"model"`
	MaxTurns int    `yaml:"max_turns"`
}

// GitConfig controls repository interaction.
type GitConfig struct {
	Remote        string `yaml:"remote"`
	DefaultBranch string `yaml:"default_branch"`
}

// Config is the full agent configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Gateway GatewayConfig `yaml:"gateway"`
	Agent   AgentConfig   `yaml:"agent"`
	Git     GitConfig     `yaml:"git"`

	// Cloud marks automated execution: empty phase commits are allowed
	// and change requests default to enabled.
	Cloud bool `yaml:"cloud"`

	// CreateChangeRequest overrides the change-request default when set.
	CreateChangeRequest *bool `yaml:"create_change_request"`

	// JournalPath is the local event journal location. Empty disables it.
	// The default lives under .git/ so the journal is never staged with
	// the task artifacts and never shows up as a working-tree change.
	JournalPath string `yaml:"journal_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent:       AgentConfig{Path: "claude"},
		Git:         GitConfig{Remote: "origin"},
		JournalPath: filepath.Join(".git", "taskagent", "journal.db"),
	}
}

// Load reads configuration from path (missing file is fine) and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("POSTHOG_API_URL", &cfg.API.BaseURL)
	setString("POSTHOG_API_TOKEN", &cfg.API.Token)
	setString("POSTHOG_GATEWAY_URL", &cfg.Gateway.BaseURL)
	setString("POSTHOG_GATEWAY_KEY", &cfg.Gateway.APIKey)
	setString("POSTHOG_AGENT_PATH", &cfg.Agent.Path)
	setString("POSTHOG_AGENT_MODEL", &cfg.Agent.Model)

	if v := os.Getenv("POSTHOG_CLOUD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cloud = b
		}
	}
}

// ShouldCreateChangeRequest resolves the change-request flag: an explicit
// setting wins, otherwise change requests are on in cloud mode only.
func (c *Config) ShouldCreateChangeRequest() bool {
	if c.CreateChangeRequest != nil {
		return *c.CreateChangeRequest
	}
	return c.Cloud
}

// AgentEnv returns the gateway configuration as environment pairs for the
// agent process.
func (c *Config) AgentEnv() []string {
	var env []string
	if c.Gateway.BaseURL != "" {
		env = append(env, "ANTHROPIC_BASE_URL="+c.Gateway.BaseURL)
	}
	if c.Gateway.APIKey != "" {
		env = append(env, "ANTHROPIC_AUTH_TOKEN="+c.Gateway.APIKey)
	}
	return env
}
