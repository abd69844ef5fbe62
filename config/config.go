// Package config loads process-wide configuration for the voiceflow service.
//
// Configuration is read exactly once at startup, from the environment and an
// optional YAML file, and injected into component constructors. Components
// never read the environment ad hoc.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the synthesis pipeline. These mirror the platform execution
// budget: the platform allows 120s per request, internally budgeted to 90s so
// a timeout response can still be delivered.
const (
	// DefaultAgentID is used when a request does not name an agent.
	DefaultAgentID = "i3gU7j7TnkhSqx3MNkhu"

	// DefaultMaxAttempts bounds the audio-processing retry loop.
	DefaultMaxAttempts = 3

	// DefaultCallTimeout is the per-attempt timeout for the audio service.
	DefaultCallTimeout = 60 * time.Second

	// DefaultPartialAfter is how long to wait before returning a
	// partial "still working" response.
	DefaultPartialAfter = 20 * time.Second

	// DefaultHardDeadline is the absolute budget for one request.
	DefaultHardDeadline = 90 * time.Second

	// DefaultAddr is the HTTP listen address.
	DefaultAddr = ":8787"

	// DefaultResultTTL is how long background-completed workflows are
	// retained for polling after a partial response.
	DefaultResultTTL = 10 * time.Minute
)

// Config holds all runtime configuration. Read-only after Load.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// AudioAPIKey authenticates against the conversational-audio service.
	AudioAPIKey string `yaml:"audio_api_key"`

	// SynthAPIKey authenticates against the generation backend.
	SynthAPIKey string `yaml:"synth_api_key"`

	// AgentID is the default conversational-audio agent.
	AgentID string `yaml:"agent_id"`

	// SynthModel is the generation backend model.
	SynthModel string `yaml:"synth_model"`

	// MaxAttempts bounds the audio retry loop.
	MaxAttempts int `yaml:"max_attempts"`

	// CallTimeout is the per-attempt audio service timeout.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// PartialAfter is the partial-response timer duration.
	PartialAfter time.Duration `yaml:"partial_after"`

	// HardDeadline is the absolute per-request budget.
	HardDeadline time.Duration `yaml:"hard_deadline"`

	// ResultTTL bounds retention of background-completed workflows.
	ResultTTL time.Duration `yaml:"result_ttl"`

	// RedisAddr enables the Redis result store when non-empty.
	RedisAddr string `yaml:"redis_addr"`

	// Environment is the deployment profile ("development" enables
	// error detail in responses).
	Environment string `yaml:"environment"`
}

// Development reports whether the development profile is active.
// Error details (including stack context) are only surfaced to callers
// in development.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Load builds a Config from the environment, overlaid on the optional YAML
// file named by VOICEFLOW_CONFIG. Environment variables win over file values.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:         DefaultAddr,
		AgentID:      DefaultAgentID,
		SynthModel:   "gpt-4o",
		MaxAttempts:  DefaultMaxAttempts,
		CallTimeout:  DefaultCallTimeout,
		PartialAfter: DefaultPartialAfter,
		HardDeadline: DefaultHardDeadline,
		ResultTTL:    DefaultResultTTL,
	}

	if path := os.Getenv("VOICEFLOW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString(&cfg.Addr, "VOICEFLOW_ADDR")
	setString(&cfg.AudioAPIKey, "ELEVENLABS_API_KEY")
	setString(&cfg.SynthAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AgentID, "VOICEFLOW_AGENT_ID")
	setString(&cfg.SynthModel, "VOICEFLOW_SYNTH_MODEL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Environment, "VOICEFLOW_ENV")
	setDuration(&cfg.CallTimeout, "VOICEFLOW_CALL_TIMEOUT")
	setDuration(&cfg.PartialAfter, "VOICEFLOW_PARTIAL_AFTER")
	setDuration(&cfg.HardDeadline, "VOICEFLOW_HARD_DEADLINE")
	setDuration(&cfg.ResultTTL, "VOICEFLOW_RESULT_TTL")
}
