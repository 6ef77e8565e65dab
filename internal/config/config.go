// Package config loads the session configuration. The config is read
// once at session start and is immutable afterwards; policy rules load
// separately through the policy package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"screenpilot/internal/agent"
	"screenpilot/internal/power"
	"screenpilot/internal/ratelimit"
)

// ReasonerConfig describes one reasoning endpoint.
type ReasonerConfig struct {
	// Provider is "openai" (any chat-completions endpoint, including
	// Ollama) or "bedrock".
	Provider string `yaml:"provider"`
	APIURL   string `yaml:"api_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Region   string `yaml:"region"` // bedrock only
}

// Configured reports whether this reasoner block is usable.
func (r ReasonerConfig) Configured() bool {
	switch r.Provider {
	case "openai":
		return r.APIURL != "" && r.Model != ""
	case "bedrock":
		return r.Model != ""
	default:
		return false
	}
}

// Config is the full session configuration.
type Config struct {
	// DeviceSerial selects an adb device; empty uses the only one.
	DeviceSerial string `yaml:"device_serial"`

	PolicyPath   string `yaml:"policy_path"`
	AuditPath    string `yaml:"audit_path"`
	ApprovalDir  string `yaml:"approval_dir"`
	MemoryPath   string `yaml:"memory_path"`
	SchedulePath string `yaml:"schedule_path"`

	MemoryLimit      int    `yaml:"memory_limit"`
	BatteryThreshold int    `yaml:"battery_threshold"`
	EmergencyKeyword string `yaml:"emergency_keyword"`

	ObserveRetries int           `yaml:"observe_retries"`
	CallTimeout    time.Duration `yaml:"call_timeout"`

	RateLimit ratelimit.Config `yaml:"rate_limit"`

	Local ReasonerConfig `yaml:"local_reasoner"`
	Cloud ReasonerConfig `yaml:"cloud_reasoner"`
}

// Default returns the built-in configuration rooted under ~/.screenpilot.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".screenpilot")
	return &Config{
		PolicyPath:       filepath.Join(root, "policy.yaml"),
		AuditPath:        filepath.Join(root, "audit.jsonl"),
		ApprovalDir:      filepath.Join(root, "approvals"),
		MemoryPath:       filepath.Join(root, "memory.db"),
		MemoryLimit:      100,
		BatteryThreshold: power.DefaultThreshold,
		EmergencyKeyword: agent.DefaultStopLiteral,
		ObserveRetries:   3,
		CallTimeout:      2 * time.Minute,
		RateLimit:        ratelimit.DefaultConfig(),
		Local: ReasonerConfig{
			Provider: "openai",
			APIURL:   "http://localhost:11434/v1/chat/completions",
			Model:    "llama3.2",
		},
	}
}

// Load reads YAML config from path, expanding ${VAR} references from
// the environment. Empty path falls back to ~/.screenpilot/config.yaml;
// a missing file returns defaults. Invalid YAML is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Default(), nil
		}
		path = filepath.Join(home, ".screenpilot", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MemoryLimit <= 0 {
		return fmt.Errorf("memory_limit must be positive, got %d", c.MemoryLimit)
	}
	if c.BatteryThreshold < 0 || c.BatteryThreshold > 100 {
		return fmt.Errorf("battery_threshold must be 0-100, got %d", c.BatteryThreshold)
	}
	if c.EmergencyKeyword == "" {
		return fmt.Errorf("emergency_keyword cannot be empty")
	}
	for name, r := range map[string]ReasonerConfig{"local_reasoner": c.Local, "cloud_reasoner": c.Cloud} {
		if r.Provider == "" {
			continue
		}
		if r.Provider != "openai" && r.Provider != "bedrock" {
			return fmt.Errorf("%s: unknown provider %q", name, r.Provider)
		}
	}
	return nil
}
