package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"vqagen/models"
)

// DefaultModel is the multimodal model every run targets unless overridden.
const DefaultModel = "gemini-2.0-flash"

// Config is the full run configuration: defaults, then the optional YAML
// file, then environment overrides. Flag overrides happen in the CLI layer.
// Durations are whole seconds in YAML.
type Config struct {
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	Concurrency    int    `yaml:"concurrency"`
	CallTimeoutSec int    `yaml:"call_timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryDelaySec  int    `yaml:"retry_delay_seconds"`
	KeyRPM         int    `yaml:"key_rpm"`
	CheckpointSec  int    `yaml:"checkpoint_seconds"`
	NoShuffle      bool   `yaml:"no_shuffle"`

	Generation models.GenerationConfig `yaml:"generation"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	// Keys come only from the environment, never from the config file.
	Keys []string `yaml:"-"`
}

// LoadConfig reads the optional YAML config file and applies environment
// overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaultConfig() *Config {
	temp := 1.0
	topP := 0.95
	topK := 40
	return &Config{
		Model:          DefaultModel,
		Concurrency:    3,
		CallTimeoutSec: 90,
		MaxAttempts:    3,
		RetryDelaySec:  4,
		KeyRPM:         15,
		CheckpointSec:  30,
		Generation: models.GenerationConfig{
			Temperature:     &temp,
			TopP:            &topP,
			TopK:            &topK,
			MaxOutputTokens: 8192,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	c.Keys = KeysFromEnv()
}

// Validate performs the sanity checks shared by every command. Credential
// presence is checked separately; building requests needs no keys.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("config: model must not be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("config: concurrency must be positive, got %d", c.Concurrency)
	}
	if c.CallTimeoutSec <= 0 {
		return fmt.Errorf("config: call_timeout_seconds must be positive, got %d", c.CallTimeoutSec)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("config: max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RetryDelaySec < 0 {
		return fmt.Errorf("config: retry_delay_seconds must not be negative, got %d", c.RetryDelaySec)
	}
	if c.KeyRPM < 0 {
		return fmt.Errorf("config: key_rpm must not be negative, got %d", c.KeyRPM)
	}
	if c.CheckpointSec < 0 {
		return fmt.Errorf("config: checkpoint_seconds must not be negative, got %d", c.CheckpointSec)
	}
	return nil
}

// RequireKeys fails when no credential is configured.
func (c *Config) RequireKeys() error {
	if len(c.Keys) == 0 {
		return errors.New("no API keys found, set GEMINI_API_KEY (comma-separated for multiple keys)")
	}
	return nil
}

// CallTimeout is the per-call deadline.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSec) * time.Second
}

// RetryDelay is the fixed pause between transient attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// CheckpointInterval is the periodic flush cadence; 0 disables checkpoints.
func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointSec) * time.Second
}

// DispatchConfig projects the dispatcher's slice of the configuration.
func (c *Config) DispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxAttempts: c.MaxAttempts,
		CallTimeout: c.CallTimeout(),
		RetryDelay:  c.RetryDelay(),
		Shuffle:     !c.NoShuffle,
	}
}

// KeysFromEnv splits the comma-separated credential list. GEMINI_API_KEY is
// the primary variable; GEMINI_API_KEYS is accepted as an alias.
func KeysFromEnv() []string {
	raw := os.Getenv("GEMINI_API_KEY")
	if raw == "" {
		raw = os.Getenv("GEMINI_API_KEYS")
	}
	if raw == "" {
		return nil
	}
	return dedupeKeys(strings.Split(raw, ","))
}

// LoadDotEnv pulls a .env file into the environment when present, without
// overriding variables already set. Missing files are fine.
func LoadDotEnv(log *logrus.Logger) {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".vqagen.env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Warnf("Failed to load %s: %v", p, err)
			continue
		}
		log.Debugf("Loaded environment from %s", p)
		return
	}
}
