// Package config resolves runtime settings from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// MaxAttempts is the per-step retry budget of the strategist.
	MaxAttempts int `yaml:"max_attempts"`
	// MaxReplans bounds how often a failing run may request a new plan.
	MaxReplans int `yaml:"max_replans"`
	// MaxSteps guards against runaway plans after repeated replanning.
	MaxSteps int `yaml:"max_steps"`

	Headless      bool   `yaml:"headless"`
	StoragePath   string `yaml:"storage_path"`
	SaveStatePath string `yaml:"save_state_path"`
	OutputDir     string `yaml:"output_dir"`

	StepDelay   time.Duration `yaml:"step_delay"`
	VerifyDelay time.Duration `yaml:"verify_delay"`
	HistorySize int           `yaml:"history_size"`
}

func Default() Config {
	return Config{
		Provider:    "anthropic",
		MaxAttempts: 3,
		MaxReplans:  2,
		MaxSteps:    40,
		Headless:    false,
		OutputDir:   "output",
		StepDelay:   time.Second,
		VerifyDelay: 2 * time.Second,
		HistorySize: 20,
	}
}

// Load starts from defaults, overlays the YAML file when path is non-empty,
// then overlays the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Provider, "LLM_PROVIDER")
	setString(&c.Model, "LLM_MODEL")
	setInt(&c.MaxAttempts, "AGENT_MAX_ATTEMPTS")
	setInt(&c.MaxReplans, "AGENT_MAX_REPLANS")
	setInt(&c.MaxSteps, "AGENT_MAX_STEPS")
	setBool(&c.Headless, "AGENT_HEADLESS")
	setString(&c.StoragePath, "AGENT_STORAGE_PATH")
	setString(&c.SaveStatePath, "AGENT_SAVE_STATE_PATH")
	setString(&c.OutputDir, "AGENT_OUTPUT_DIR")
	setDuration(&c.StepDelay, "AGENT_STEP_DELAY")
	setDuration(&c.VerifyDelay, "AGENT_VERIFY_DELAY")
	setInt(&c.HistorySize, "AGENT_HISTORY_SIZE")
}

func (c Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.MaxReplans < 0 {
		return fmt.Errorf("max_replans must not be negative, got %d", c.MaxReplans)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		*dst = d
	}
}
