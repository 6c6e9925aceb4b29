// Package config handles Parley configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/parley/config.yaml, /etc/parley/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", "config.yaml"))
	}

	paths = append(paths, "/etc/parley/config.yaml")
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

// Config holds all Parley configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Completion CompletionConfig `yaml:"completion"`
	Tools      ToolsConfig      `yaml:"tools"`
	Retry      RetryConfig      `yaml:"retry"`
	Agent      AgentConfig      `yaml:"agent"`
	Auth       AuthConfig       `yaml:"auth"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// CompletionConfig defines the upstream completion service. Any
// OpenAI-compatible chat completions endpoint works; the default
// points at Groq.
type CompletionConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// ToolsConfig holds per-tool external API credentials. A tool whose key
// is empty stays registered and answers with documented mock data, so a
// fresh install is usable without any accounts.
type ToolsConfig struct {
	AlphaVantageKey string `yaml:"alpha_vantage_key"` // stock quotes
	WeatherKey      string `yaml:"weather_key"`       // weatherapi.com
	NewsKey         string `yaml:"news_key"`          // newsapi.org
	ExchangeKey     string `yaml:"exchange_key"`      // openexchangerates.org
	NASAKey         string `yaml:"nasa_key"`          // api.nasa.gov
}

// RetryConfig tunes the resilient invoker wrapped around external calls.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`     // default 3
	InitialDelayMS int `yaml:"initial_delay_ms"` // default 1000, doubles per retry
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// MaxHops bounds route↔execute alternations in a single turn.
	// Exceeding it aborts the turn with a recursion error.
	MaxHops int `yaml:"max_hops"`
}

// AuthConfig holds the fixed credential table for the chat UI login.
type AuthConfig struct {
	Users []Credential `yaml:"users"`
}

// Credential is one username with a bcrypt password hash.
type Credential struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Completion: CompletionConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.7,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMS: 1000,
		},
		Agent:   AgentConfig{MaxHops: 50},
		DataDir: ".",
	}
}
