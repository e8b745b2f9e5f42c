// Package config loads the kernel configuration: YAML file, then NEXUS_*
// environment overrides on top. Every knob has a default so a missing file
// still yields a runnable kernel.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// TickMs is the logical tick cadence in milliseconds.
	TickMs uint64 `yaml:"tick_ms"`

	// PlannerURL is the base URL of the completion server.
	PlannerURL string `yaml:"planner_url"`
	// PlannerTimeoutMs bounds one planner round trip.
	PlannerTimeoutMs uint64 `yaml:"planner_timeout_ms"`

	// QuiescenceMinTicks is how long the kernel must be idle before it
	// dispatches a plan on its own.
	QuiescenceMinTicks uint64 `yaml:"quiescence_min_ticks"`
	// SoftCommitMinAgeTicks is the minimum draft age before a hard commit.
	SoftCommitMinAgeTicks uint64 `yaml:"soft_commit_min_age_ticks"`

	// AttentiveWindowTicks is how long after a signal presence stays
	// attentive.
	AttentiveWindowTicks uint64 `yaml:"attentive_window_ticks"`

	// DissolutionThreshold is the intent confidence floor.
	DissolutionThreshold float32 `yaml:"dissolution_threshold"`

	// EpisodicTTLTicks evicts episodic memories not seen for this long.
	EpisodicTTLTicks uint64 `yaml:"episodic_ttl_ticks"`
	// SemanticStorePath is the sqlite file for durable memory.
	SemanticStorePath string `yaml:"semantic_store_path"`
	// MemoryConsent gates durable personal memory behind user consent.
	MemoryConsent bool `yaml:"memory_consent"`

	// LogLevel is a zap level string: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		TickMs:                50,
		PlannerURL:            "http://localhost:8080",
		PlannerTimeoutMs:      200,
		QuiescenceMinTicks:    3,
		SoftCommitMinAgeTicks: 2,
		AttentiveWindowTicks:  50,
		DissolutionThreshold:  0.1,
		EpisodicTTLTicks:      10_000,
		SemanticStorePath:     "nexus_memory.db",
		MemoryConsent:         true,
		LogLevel:              "info",
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the kernel cannot run with.
func (c Config) Validate() error {
	if c.TickMs == 0 {
		return fmt.Errorf("tick_ms must be positive")
	}
	if c.PlannerTimeoutMs == 0 {
		return fmt.Errorf("planner_timeout_ms must be positive")
	}
	if c.DissolutionThreshold < 0 || c.DissolutionThreshold >= 1 {
		return fmt.Errorf("dissolution_threshold must be in [0, 1)")
	}
	return nil
}

// applyEnvOverrides layers NEXUS_* variables over the loaded values.
func applyEnvOverrides(cfg *Config) {
	envString("NEXUS_PLANNER_URL", &cfg.PlannerURL)
	envString("NEXUS_SEMANTIC_STORE_PATH", &cfg.SemanticStorePath)
	envString("NEXUS_LOG_LEVEL", &cfg.LogLevel)

	envUint("NEXUS_TICK_MS", &cfg.TickMs)
	envUint("NEXUS_PLANNER_TIMEOUT_MS", &cfg.PlannerTimeoutMs)
	envUint("NEXUS_QUIESCENCE_MIN_TICKS", &cfg.QuiescenceMinTicks)
	envUint("NEXUS_SOFT_COMMIT_MIN_AGE_TICKS", &cfg.SoftCommitMinAgeTicks)
	envUint("NEXUS_ATTENTIVE_WINDOW_TICKS", &cfg.AttentiveWindowTicks)
	envUint("NEXUS_EPISODIC_TTL_TICKS", &cfg.EpisodicTTLTicks)

	envFloat("NEXUS_DISSOLUTION_THRESHOLD", &cfg.DissolutionThreshold)
	envBool("NEXUS_MEMORY_CONSENT", &cfg.MemoryConsent)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envUint(key string, dst *uint64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float32) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			*dst = float32(f)
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
