// Package config provides configuration loading for openaitools.
// Configuration is resolved once at startup and passed explicitly to client
// construction; there is no module-level mutable state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete openaitools configuration.
type Config struct {
	API   APIConfig   `yaml:"api"`
	Retry RetryConfig `yaml:"retry"`
}

// APIConfig configures the upstream API endpoint.
type APIConfig struct {
	// Base overrides the API base URL (empty = provider default).
	Base string `yaml:"base"`
	// Key is the API key credential.
	Key string `yaml:"key"`
	// BackendType selects response shape expectations for alternate
	// OpenAI-compatible backends (empty = standard chat completions).
	BackendType string `yaml:"backend_type"`
	// EmbeddingModel is the model used when a caller doesn't name one.
	EmbeddingModel string `yaml:"embedding_model"`
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig configures backoff behavior for rate-limited requests.
type RetryConfig struct {
	// InitialDelay seeds the backoff delay sequence.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// ExponentialBase multiplies the delay on each retry (must be > 1).
	ExponentialBase float64 `yaml:"exponential_base"`
	// Jitter randomizes delays to avoid synchronized retry storms.
	Jitter bool `yaml:"jitter"`
	// MaxRetries bounds retries per call, not counting the first attempt.
	MaxRetries int `yaml:"max_retries"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Base:           "", // Provider default
			EmbeddingModel: "text-embedding-ada-002",
			Timeout:        180 * time.Second, // Allow time for LLM responses
		},
		Retry: RetryConfig{
			InitialDelay:    time.Second,
			ExponentialBase: 2.0,
			Jitter:          true,
			MaxRetries:      20,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.API.Key == "" && c.API.Base == "" {
		return fmt.Errorf("api.key is required when no api.base override is set")
	}
	if c.API.EmbeddingModel == "" {
		return fmt.Errorf("api.embedding_model is required")
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry.initial_delay must be positive")
	}
	if c.Retry.ExponentialBase <= 1 {
		return fmt.Errorf("retry.exponential_base must be greater than 1")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, layered over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays process environment variables onto the config:
// OPENAI_API_BASE, OPENAI_API_KEY and BACKEND_TYPE.
func (c *Config) ApplyEnv() {
	if base := os.Getenv("OPENAI_API_BASE"); base != "" {
		c.API.Base = base
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.API.Key = key
	}
	if backend := os.Getenv("BACKEND_TYPE"); backend != "" {
		c.API.BackendType = backend
	}
}

// FromEnv returns the default configuration with environment overrides
// applied. It does not validate; callers validate after any further
// programmatic overrides.
func FromEnv() *Config {
	config := DefaultConfig()
	config.ApplyEnv()
	return config
}
