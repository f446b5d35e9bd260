package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxAuxTokens caps the number of auxiliary API tokens the client rotates
// through in addition to the primary one.
const maxAuxTokens = 3

// DefaultListPrefix names the gateway lists and the block rule managed by
// this tool when no explicit prefix is configured.
const DefaultListPrefix = "gatewaysync"

// Config holds the entire application configuration. Values may come from a
// YAML file, from environment variables, or both; environment variables win.
type Config struct {
	AccountID    string   `yaml:"accountId"`
	AccountEmail string   `yaml:"accountEmail"`
	APIHost      string   `yaml:"apiHost"`
	APIToken     string   `yaml:"apiToken"`
	AuxTokens    []string `yaml:"auxTokens"`
	WebhookURL   string   `yaml:"webhookUrl"`
	ListPrefix   string   `yaml:"listPrefix"`
}

// Tokens returns the ordered credential set: the primary token first, then
// the auxiliary tokens, with empty entries filtered out. The order defines
// the rotation sequence of the request client.
func (c *Config) Tokens() []string {
	tokens := make([]string, 0, 1+len(c.AuxTokens))
	if c.APIToken != "" {
		tokens = append(tokens, c.APIToken)
	}
	for _, t := range c.AuxTokens {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// validate performs comprehensive validation of the loaded configuration.
func (c *Config) validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("accountId must be set")
	}
	if c.APIHost == "" {
		return fmt.Errorf("apiHost must be set")
	}
	u, err := url.Parse(c.APIHost)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("apiHost %q must be an absolute http(s) URL", c.APIHost)
	}
	if len(c.AuxTokens) > maxAuxTokens {
		return fmt.Errorf("at most %d auxTokens may be configured, got %d", maxAuxTokens, len(c.AuxTokens))
	}
	if len(c.Tokens()) == 0 {
		return fmt.Errorf("at least one API token must be set")
	}
	return nil
}

// applyEnv overlays environment variables on top of the current values.
func (c *Config) applyEnv() {
	if v := os.Getenv("GATEWAY_ACCOUNT_ID"); v != "" {
		c.AccountID = v
	}
	if v := os.Getenv("GATEWAY_ACCOUNT_EMAIL"); v != "" {
		c.AccountEmail = v
	}
	if v := os.Getenv("GATEWAY_API_HOST"); v != "" {
		c.APIHost = v
	}
	if v := os.Getenv("GATEWAY_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("GATEWAY_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	for i := 1; i <= maxAuxTokens; i++ {
		v := os.Getenv(fmt.Sprintf("GATEWAY_AUX_TOKEN_%d", i))
		if v == "" {
			continue
		}
		for len(c.AuxTokens) < i {
			c.AuxTokens = append(c.AuxTokens, "")
		}
		c.AuxTokens[i-1] = v
	}
}

func (c *Config) applyDefaults() {
	if c.ListPrefix == "" {
		c.ListPrefix = DefaultListPrefix
	}
	c.APIHost = strings.TrimSuffix(c.APIHost, "/")
}

// LoadConfig reads the configuration from the given file path, overlays
// environment variables, and performs validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds the configuration from environment variables alone.
func FromEnv() (*Config, error) {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
