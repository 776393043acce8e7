package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Tandem configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	DBPath   string         `yaml:"db_path"`
	Provider ProviderConfig `yaml:"provider"`
	// Models holds the named model slots: model1, model2, ...
	Models   map[string]string `yaml:"models"`
	Cache    CacheConfig       `yaml:"cache"`
	Failover FailoverConfig    `yaml:"failover"`
	Prompts  PromptConfig      `yaml:"prompts"`
	Log      LogConfig         `yaml:"log"`
}

// ProviderConfig defines the upstream chat-completions endpoint.
type ProviderConfig struct {
	URL         string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CacheConfig controls the fingerprint cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	// Version is mixed into every fingerprint. Bump it to invalidate
	// entries produced by older prompt-construction logic.
	Version string `yaml:"version"`
	// Sweep is a cron spec for purging expired entries while serving.
	Sweep string `yaml:"sweep"`
}

// FailoverConfig controls per-attempt behaviour of the failover client.
type FailoverConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Backoff time.Duration `yaml:"backoff"`
}

// PromptConfig overrides the built-in system prompts. Empty means default.
type PromptConfig struct {
	Transform string `yaml:"transform"`
	Interpret string `yaml:"interpret"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
	Caller     bool   `yaml:"caller"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "tandem.db",
		Provider: ProviderConfig{
			URL:         "https://openrouter.ai/api/v1/chat/completions",
			Temperature: 0.7,
			MaxTokens:   500,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
			Version: "v1",
			Sweep:   "@hourly",
		},
		Failover: FailoverConfig{
			Timeout: 25 * time.Second,
			Backoff: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:      "info",
			TimeFormat: "15:04:05",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// FileSource serves model slots straight from a config file. Every call
// re-reads the file so edits take effect without a restart.
type FileSource struct {
	Path string
}

// Slots implements registry.Source.
func (f FileSource) Slots() (map[string]string, error) {
	cfg, err := Load(f.Path)
	if err != nil {
		return nil, err
	}
	return cfg.Models, nil
}
