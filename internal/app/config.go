package app

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig describes one configured LLM provider.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// APIKeyEnv names an environment variable consulted when APIKey is
	// empty, so keys stay out of the config file.
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	// Queued marks long-running providers that are submitted and polled
	// rather than awaited in one round trip.
	Queued bool `yaml:"queued"`
	// NoHistory marks single-prompt providers exempt from topic
	// classification.
	NoHistory bool `yaml:"no_history"`
	// ContextWindow overrides the model registry when positive.
	ContextWindow int `yaml:"context_window"`
}

type Config struct {
	Providers       []ProviderConfig `yaml:"providers"`
	DefaultProvider string           `yaml:"default_provider"`
	// PollIntervalSeconds tunes the queued-job poll period. Zero means the
	// 10 second default.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// Storage selects the durable store driver: file (default), memory,
	// or redis.
	Storage     string `yaml:"storage"`
	StorageRoot string `yaml:"storage_root"`
	RedisAddr   string `yaml:"redis_addr"`
}

func DefaultConfig() Config {
	return Config{
		Providers: []ProviderConfig{{
			Name:      "openai",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		}},
		DefaultProvider: "openai",
		Storage:         "file",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultConfig().Providers
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = cfg.Providers[0].Name
	}
	if cfg.Storage == "" {
		cfg.Storage = "file"
	}
	if cfg.PollIntervalSeconds < 0 {
		cfg.PollIntervalSeconds = 0
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "chat-cli", "config.yml")
}

// PollInterval resolves the configured poll period.
func (c Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ResolveAPIKey returns the literal key or the value of the configured
// environment variable.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}
