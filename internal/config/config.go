package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models clubrun.yml.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		TokenTTLMin int    `yaml:"token_ttl_minutes"`
	} `yaml:"auth"`
	Payments struct {
		// Mode selects the settlement rail: "static" executes locally and
		// always succeeds, "gateway" POSTs transfers to an external service.
		Mode   string `yaml:"mode"`
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"payments"`
	Content struct {
		// Backend selects the content store: "sqlite" keeps blobs in the
		// workspace database, "ipfs" pins them through an IPFS node's API.
		Backend string `yaml:"backend"`
		IPFSAPI string `yaml:"ipfs_api"`
	} `yaml:"content"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound event subscription.
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with clubrun init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.TokenTTLMin < 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must not be negative")
	}
	switch c.Payments.Mode {
	case "static":
	case "gateway":
		if c.Payments.URL == "" {
			return fmt.Errorf("config.payments.url is required in gateway mode")
		}
	default:
		return fmt.Errorf("config.payments.mode must be 'static' or 'gateway'")
	}
	switch c.Content.Backend {
	case "sqlite":
	case "ipfs":
		if c.Content.IPFSAPI == "" {
			return fmt.Errorf("config.content.ipfs_api is required for the ipfs backend")
		}
	default:
		return fmt.Errorf("config.content.backend must be 'sqlite' or 'ipfs'")
	}
	seen := map[string]bool{}
	for _, hook := range c.Webhooks {
		if hook.Name == "" {
			return fmt.Errorf("config.webhooks entry has empty name")
		}
		if seen[hook.Name] {
			return fmt.Errorf("config.webhooks has duplicate name %s", hook.Name)
		}
		seen[hook.Name] = true
		if hook.URL == "" {
			return fmt.Errorf("webhook %s has empty url", hook.Name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "clubrun.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8787

auth:
  jwt_secret: ""
  token_ttl_minutes: 720

payments:
  mode: static
  url: ""
  api_key: ""

content:
  backend: sqlite
  ipfs_api: ""

webhooks: []
`
