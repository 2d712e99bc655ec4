package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for both the server and the CLI client.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Addr    string   `yaml:"addr"`
	DataDir string   `yaml:"data_dir,omitempty"`
	Tokens  []string `yaml:"tokens,omitempty"`
}

// ClientConfig configures the CLI client.
type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token,omitempty"`
}

// AnthropicConfig configures the API-backed generation backend. When the key
// is empty the server falls back to the template generator.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// NotifyConfig configures the optional notification webhook.
type NotifyConfig struct {
	WebhookURL    string `yaml:"webhook_url,omitempty"`
	WebhookFormat string `yaml:"webhook_format,omitempty"`
}

// ConfigPath is the resolved config file location.
var ConfigPath string

func init() {
	// Prefer a config file in the working directory, fall back to the user
	// config dir.
	pwd, _ := os.Getwd()
	projectConfig := filepath.Join(pwd, "surveyflow.yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		ConfigPath = projectConfig
	} else {
		homeDir, _ := os.UserHomeDir()
		ConfigPath = filepath.Join(homeDir, ".surveyflow", "config.yaml")
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Addr:    "127.0.0.1:8844",
			DataDir: filepath.Join(homeDir, ".surveyflow"),
		},
		Client: ClientConfig{
			BaseURL: "http://127.0.0.1:8844",
		},
	}
}

// Load reads the config file, returning defaults when it does not exist.
func Load() (*Config, error) {
	data, err := os.ReadFile(ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config file, creating the directory if needed.
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(ConfigPath, data, 0o644)
}

// DBPath returns the bbolt database location for the server.
func (c *Config) DBPath() string {
	dir := c.Server.DataDir
	if dir == "" {
		homeDir, _ := os.UserHomeDir()
		dir = filepath.Join(homeDir, ".surveyflow")
	}
	return filepath.Join(dir, "surveyflow.db")
}
