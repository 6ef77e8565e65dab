package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the session's immutable rule set.
type Config struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultConfig returns an empty rule set. With no rules every app is
// denied: the default is fail-closed, not permissive.
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig loads the rule set from a YAML file. An empty path falls
// back to ~/.screenpilot/policy.yaml; a missing file returns the
// fail-closed default.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads the rule set and returns the SHA-256 of the
// raw YAML bytes, recorded in audit entries so a trail can be tied to
// the exact policy in force.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), emptyHash(), nil
		}
		path = filepath.Join(home, ".screenpilot", "policy.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("read policy config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parse policy config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, "", err
	}

	h := sha256.Sum256(data)
	return cfg, "sha256:" + hex.EncodeToString(h[:]), nil
}

func validate(cfg *Config) error {
	for i, r := range cfg.Rules {
		if r.Pattern == "" {
			return fmt.Errorf("rule %d: empty pattern", i)
		}
		switch r.Effect {
		case Allow, Deny:
		default:
			return fmt.Errorf("rule %d (%s): effect must be allow or deny, got %q", i, r.Pattern, r.Effect)
		}
	}
	return nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}
