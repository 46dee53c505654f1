// Package config loads the runner's configuration from a yaml file with
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/sway/core/providers"
)

// Duration wraps time.Duration so yaml files can carry values like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var ns int64
		if err := value.Decode(&ns); err != nil {
			return fmt.Errorf("invalid duration %q", value.Value)
		}
		*d = Duration(ns)
		return nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Generation GenerationConfig `yaml:"generation"`
	Pacing     PacingConfig     `yaml:"pacing"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type GenerationConfig struct {
	Provider  string   `yaml:"provider"`
	Timeout   Duration `yaml:"timeout"`
	MaxTokens int      `yaml:"max_tokens"`

	// TestMode serves canned fallback content without backend
	// credentials; missing credentials outside test mode fail fast.
	TestMode bool `yaml:"test_mode"`

	Anthropic providers.AnthropicConfig `yaml:"anthropic"`
	OpenAI    providers.OpenAIConfig    `yaml:"openai"`
}

type PacingConfig struct {
	Window Duration `yaml:"window"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "sway.db"},
		Generation: GenerationConfig{
			Provider:  string(providers.ProviderTypeAnthropic),
			Timeout:   Duration(12 * time.Second),
			MaxTokens: 1024,
			Anthropic: providers.DefaultAnthropicConfig(),
			OpenAI:    providers.DefaultOpenAIConfig(),
		},
		Pacing: PacingConfig{Window: Duration(3 * time.Second)},
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// defaults stand. Credentials are then overridden from the environment
// (ANTHROPIC_API_KEY, OPENAI_API_KEY).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Generation.Anthropic.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Generation.OpenAI.APIKey = key
	}
}

// Validate checks the parts that fail fast at startup.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database path is required")
	}

	typ := providers.ProviderType(c.Generation.Provider)
	switch typ {
	case providers.ProviderTypeAnthropic, providers.ProviderTypeOpenAI:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Generation.Provider)
	}

	if c.Generation.TestMode {
		return nil
	}

	switch typ {
	case providers.ProviderTypeAnthropic:
		if c.Generation.Anthropic.APIKey == "" {
			return fmt.Errorf("config: anthropic api key missing (set ANTHROPIC_API_KEY or enable test_mode)")
		}
	case providers.ProviderTypeOpenAI:
		if c.Generation.OpenAI.APIKey == "" {
			return fmt.Errorf("config: openai api key missing (set OPENAI_API_KEY or enable test_mode)")
		}
	}
	return nil
}
