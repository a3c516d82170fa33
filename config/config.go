// Package config — mctrans.yaml configuration file support.
//
// A single immutable Config value is loaded once and passed explicitly
// into the pipeline and the dispatcher; nothing reads configuration from
// ambient state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the default configuration file name.
const FileName = "mctrans.yaml"

// DefaultPrompt is the shipped system prompt template. The three
// substitution tokens are replaced per batch by the dispatcher.
const DefaultPrompt = `You are a Minecraft mod localization expert. Current mod ID: [{MOD_ID}].
You will receive a JSON array of strings in {SOURCE_LANG}.
Translate every element to {TARGET_LANG} and return a JSON array of strings.
Rules:
1. STRICT ORDER: element N of the output must correspond to element N of the input.
2. STRICT LENGTH: the output array must have exactly as many elements as the input.
3. Preserve placeholder markers and formatting sequences exactly as they appear.
4. Return ONLY the bare JSON array, no markdown code fences, no commentary.`

// Config holds every tunable of a translation run.
type Config struct {
	// APIKey is the bearer token for the translation endpoint.
	APIKey string `yaml:"api_key"`
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `yaml:"base_url"`
	// InputPath is the modpack root to scan.
	InputPath string `yaml:"input_path"`
	// OutputPath is the root of the generated resource pack.
	OutputPath string `yaml:"output_path"`
	// CheckPath is reserved for a future update-check feature. Accepted
	// and ignored.
	CheckPath string `yaml:"check_path"`
	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`
	// SourceLang and TargetLang are the language pair, in Minecraft
	// locale codes (en_us, zh_cn).
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`
	// BatchSize is the number of units per network request.
	BatchSize int `yaml:"batch_size"`
	// SkipExisting skips assets whose output file already exists
	// (ignored in update mode, which merges instead).
	SkipExisting bool `yaml:"skip_existing"`
	// UpdateExisting enables incremental mode: only units missing from
	// the existing output and baseline are dispatched.
	UpdateExisting bool `yaml:"update_existing"`
	// BaselinePath optionally points at a bundled baseline translation
	// pack laid out like OutputPath. Entries found there are reused
	// without dispatch.
	BaselinePath string `yaml:"baseline_path"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
	// MaxRetries is the retry budget per batch.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the base backoff delay in seconds.
	RetryDelay int `yaml:"retry_delay"`
	// FileSemaphore bounds how many assets are processed concurrently.
	FileSemaphore int `yaml:"file_semaphore"`
	// MaxNetworkConcurrency bounds in-flight network requests globally,
	// across all assets.
	MaxNetworkConcurrency int `yaml:"max_network_concurrency"`
	// Prompt is the system prompt template with {MOD_ID}, {SOURCE_LANG}
	// and {TARGET_LANG} tokens.
	Prompt string `yaml:"prompt"`
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
	// ProtectedPatterns are extra regular expressions for substrings the
	// masker must protect (glossary markers, custom placeholder syntax).
	ProtectedPatterns []string `yaml:"protected_patterns,omitempty"`
}

// Default returns the shipped defaults.
func Default() *Config {
	return &Config{
		BaseURL:               "https://api.openai.com/v1",
		OutputPath:            "./output_pack",
		CheckPath:             "./output_pack",
		Model:                 "gpt-4o-mini",
		SourceLang:            "en_us",
		TargetLang:            "zh_cn",
		BatchSize:             200,
		SkipExisting:          true,
		Timeout:               180,
		MaxRetries:            5,
		RetryDelay:            10,
		FileSemaphore:         5,
		MaxNetworkConcurrency: 10,
		Prompt:                DefaultPrompt,
	}
}

// Load reads a config file. A missing file yields the defaults; a present
// but unparsable file is an error rather than a silent fallback.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as formatted YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("input_path is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.FileSemaphore <= 0 {
		return fmt.Errorf("file_semaphore must be > 0, got %d", c.FileSemaphore)
	}
	if c.MaxNetworkConcurrency <= 0 {
		return fmt.Errorf("max_network_concurrency must be > 0, got %d", c.MaxNetworkConcurrency)
	}
	return nil
}

// TimeoutDuration returns the per-request timeout.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// RetryDelayDuration returns the base backoff delay.
func (c *Config) RetryDelayDuration() time.Duration {
	if c.RetryDelay <= 0 {
		return time.Second
	}
	return time.Duration(c.RetryDelay) * time.Second
}
