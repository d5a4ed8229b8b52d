// Package config provides configuration loading and management for genguard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in generation.provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config represents the complete genguard configuration
type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Policy     PolicyConfig     `yaml:"policy"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// GenerationConfig configures the generation backend
type GenerationConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic"
	Provider string `yaml:"provider"`
	// Endpoint is the API base URL (default: http://localhost:11434/v1)
	Endpoint string `yaml:"endpoint"`
	// Model is the model name (e.g., "qwen2.5-coder:32b")
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env"`
	// Temperature controls randomness (0.0-1.0, default: 0.1)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens bounds each response
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the maximum time to wait for one response
	Timeout time.Duration `yaml:"timeout"`
}

// APIKey reads the key from the configured environment variable.
func (g GenerationConfig) APIKey() string {
	if g.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(g.APIKeyEnv)
}

// RetryConfig configures the retry loop
type RetryConfig struct {
	// MaxAttempts is the number of generations tried per artifact
	MaxAttempts int `yaml:"max_attempts"`
	// ContextLines is the half-width of the feedback context window
	ContextLines int `yaml:"context_lines"`
	// DebugDir receives failing artifacts (empty = not preserved)
	DebugDir string `yaml:"debug_dir"`
}

// PolicyConfig configures code validation
type PolicyConfig struct {
	// File is a YAML policy table (empty = built-in policy)
	File string `yaml:"file"`
	// MaxFunctions is the function count above which a warning is raised
	MaxFunctions int `yaml:"max_functions"`
	// Hints adds INFO quality hints to code reports
	Hints bool `yaml:"hints"`
}

// EventsConfig configures NATS event publishing
type EventsConfig struct {
	// NATSURL is the NATS server URL (empty = no events)
	NATSURL string `yaml:"nats_url"`
	// SubjectPrefix prefixes attempt and outcome subjects
	SubjectPrefix string `yaml:"subject_prefix"`
	// RunBucket is the JetStream KV bucket holding run records
	RunBucket string `yaml:"run_bucket"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider:    ProviderOpenAI,
			Endpoint:    "http://localhost:11434/v1",
			Model:       "qwen2.5-coder:32b",
			Temperature: 0.1,
			MaxTokens:   4096,
			Timeout:     3 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			ContextLines: 3,
			DebugDir:     ".genguard/debug",
		},
		Policy: PolicyConfig{
			MaxFunctions: 50,
		},
		Events: EventsConfig{
			SubjectPrefix: "genguard.events",
			RunBucket:     "GENGUARD_RUNS",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderOpenAI:
		if c.Generation.Endpoint == "" {
			return fmt.Errorf("generation.endpoint is required for provider %q", ProviderOpenAI)
		}
	case ProviderAnthropic:
	default:
		return fmt.Errorf("generation.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderAnthropic, c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 1 {
		return fmt.Errorf("generation.temperature must be between 0 and 1")
	}
	if c.Generation.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.ContextLines < 0 {
		return fmt.Errorf("retry.context_lines must not be negative")
	}
	if c.Policy.MaxFunctions < 1 {
		return fmt.Errorf("policy.max_functions must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Generation
	g, og := &c.Generation, other.Generation
	if og.Provider != "" {
		g.Provider = og.Provider
	}
	if og.Endpoint != "" {
		g.Endpoint = og.Endpoint
	}
	if og.Model != "" {
		g.Model = og.Model
	}
	if og.APIKeyEnv != "" {
		g.APIKeyEnv = og.APIKeyEnv
	}
	if og.Temperature != 0 {
		g.Temperature = og.Temperature
	}
	if og.MaxTokens != 0 {
		g.MaxTokens = og.MaxTokens
	}
	if og.Timeout != 0 {
		g.Timeout = og.Timeout
	}

	// Retry
	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.ContextLines != 0 {
		c.Retry.ContextLines = other.Retry.ContextLines
	}
	if other.Retry.DebugDir != "" {
		c.Retry.DebugDir = other.Retry.DebugDir
	}

	// Policy
	if other.Policy.File != "" {
		c.Policy.File = other.Policy.File
	}
	if other.Policy.MaxFunctions != 0 {
		c.Policy.MaxFunctions = other.Policy.MaxFunctions
	}
	if other.Policy.Hints {
		c.Policy.Hints = true
	}

	// Events
	if other.Events.NATSURL != "" {
		c.Events.NATSURL = other.Events.NATSURL
	}
	if other.Events.SubjectPrefix != "" {
		c.Events.SubjectPrefix = other.Events.SubjectPrefix
	}
	if other.Events.RunBucket != "" {
		c.Events.RunBucket = other.Events.RunBucket
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
