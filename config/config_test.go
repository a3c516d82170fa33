package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 200 || cfg.MaxRetries != 5 || cfg.MaxNetworkConcurrency != 10 {
		t.Errorf("defaults = %+v", cfg)
	}
	if !strings.Contains(cfg.Prompt, "{MOD_ID}") {
		t.Error("default prompt missing {MOD_ID} token")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg := Default()
	cfg.APIKey = "sk-test"
	cfg.InputPath = "/packs/atm9"
	cfg.TargetLang = "ja_jp"
	cfg.BatchSize = 50
	cfg.ProtectedPatterns = []string{`<<[^>]+>>`}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.APIKey != "sk-test" || loaded.TargetLang != "ja_jp" || loaded.BatchSize != 50 {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.ProtectedPatterns) != 1 {
		t.Errorf("protected patterns = %v", loaded.ProtectedPatterns)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("api_key: sk-x\nbatch_size: 30\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-x" || cfg.BatchSize != 30 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxRetries != 5 || cfg.SourceLang != "en_us" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("batch_size: [not an int\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.InputPath = "/in"

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing input", func(c *Config) { c.InputPath = "" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero file semaphore", func(c *Config) { c.FileSemaphore = 0 }},
		{"zero network concurrency", func(c *Config) { c.MaxNetworkConcurrency = 0 }},
	}
	for _, tc := range tests {
		cfg := Default()
		cfg.InputPath = "/in"
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	cfg.Timeout = 30
	cfg.RetryDelay = 2
	if cfg.TimeoutDuration() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.TimeoutDuration())
	}
	if cfg.RetryDelayDuration() != 2*time.Second {
		t.Errorf("retry delay = %v", cfg.RetryDelayDuration())
	}
}
