package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.EmbeddingModel != "text-embedding-ada-002" {
		t.Errorf("expected default embedding model text-embedding-ada-002, got %s", cfg.API.EmbeddingModel)
	}
	if cfg.Retry.InitialDelay != time.Second {
		t.Errorf("expected default initial delay 1s, got %v", cfg.Retry.InitialDelay)
	}
	if cfg.Retry.ExponentialBase != 2.0 {
		t.Errorf("expected default exponential base 2.0, got %f", cfg.Retry.ExponentialBase)
	}
	if !cfg.Retry.Jitter {
		t.Error("expected jitter enabled by default")
	}
	if cfg.Retry.MaxRetries != 20 {
		t.Errorf("expected default max retries 20, got %d", cfg.Retry.MaxRetries)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid with api key",
			modify:  func(c *Config) { c.API.Key = "sk-test" },
			wantErr: false,
		},
		{
			name:    "valid with base override and no key",
			modify:  func(c *Config) { c.API.Base = "http://localhost:8080/v1" },
			wantErr: false,
		},
		{
			name:    "missing key and base",
			modify:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "missing embedding model",
			modify: func(c *Config) {
				c.API.Key = "sk-test"
				c.API.EmbeddingModel = ""
			},
			wantErr: true,
		},
		{
			name: "zero initial delay",
			modify: func(c *Config) {
				c.API.Key = "sk-test"
				c.Retry.InitialDelay = 0
			},
			wantErr: true,
		},
		{
			name: "exponential base not greater than 1",
			modify: func(c *Config) {
				c.API.Key = "sk-test"
				c.Retry.ExponentialBase = 1.0
			},
			wantErr: true,
		},
		{
			name: "negative max retries",
			modify: func(c *Config) {
				c.API.Key = "sk-test"
				c.Retry.MaxRetries = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openaitools.yaml")

	content := `
api:
  base: http://localhost:11434/v1
  key: sk-local
  embedding_model: nomic-embed-text
retry:
  initial_delay: 500ms
  max_retries: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.API.Base != "http://localhost:11434/v1" {
		t.Errorf("got base %q", cfg.API.Base)
	}
	if cfg.API.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("got embedding model %q", cfg.API.EmbeddingModel)
	}
	if cfg.Retry.InitialDelay != 500*time.Millisecond {
		t.Errorf("got initial delay %v", cfg.Retry.InitialDelay)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("got max retries %d", cfg.Retry.MaxRetries)
	}
	// Unspecified fields keep their defaults.
	if cfg.Retry.ExponentialBase != 2.0 {
		t.Errorf("got exponential base %f, want default 2.0", cfg.Retry.ExponentialBase)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_BASE", "http://mock:9999/v1")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("BACKEND_TYPE", "webui")

	cfg := FromEnv()

	if cfg.API.Base != "http://mock:9999/v1" {
		t.Errorf("got base %q", cfg.API.Base)
	}
	if cfg.API.Key != "sk-env" {
		t.Errorf("got key %q", cfg.API.Key)
	}
	if cfg.API.BackendType != "webui" {
		t.Errorf("got backend type %q", cfg.API.BackendType)
	}
}
