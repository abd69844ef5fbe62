package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AgentID != DefaultAgentID {
		t.Errorf("AgentID = %v, want %v", cfg.AgentID, DefaultAgentID)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %v, want %v", cfg.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.CallTimeout != DefaultCallTimeout {
		t.Errorf("CallTimeout = %v, want %v", cfg.CallTimeout, DefaultCallTimeout)
	}
	if cfg.PartialAfter != DefaultPartialAfter {
		t.Errorf("PartialAfter = %v, want %v", cfg.PartialAfter, DefaultPartialAfter)
	}
	if cfg.HardDeadline != DefaultHardDeadline {
		t.Errorf("HardDeadline = %v, want %v", cfg.HardDeadline, DefaultHardDeadline)
	}
	if cfg.Development() {
		t.Error("Development() = true for empty environment")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOICEFLOW_AGENT_ID", "agent-from-env")
	t.Setenv("VOICEFLOW_ENV", "development")
	t.Setenv("VOICEFLOW_HARD_DEADLINE", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AgentID != "agent-from-env" {
		t.Errorf("AgentID = %v, want agent-from-env", cfg.AgentID)
	}
	if !cfg.Development() {
		t.Error("Development() = false, want true")
	}
	if cfg.HardDeadline != 45*time.Second {
		t.Errorf("HardDeadline = %v, want 45s", cfg.HardDeadline)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceflow.yaml")
	data := []byte("agent_id: agent-from-file\naddr: \":9090\"\nmax_attempts: 5\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOICEFLOW_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AgentID != "agent-from-file" {
		t.Errorf("AgentID = %v, want agent-from-file", cfg.AgentID)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %v, want :9090", cfg.Addr)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %v, want 5", cfg.MaxAttempts)
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceflow.yaml")
	if err := os.WriteFile(path, []byte("agent_id: agent-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOICEFLOW_CONFIG", path)
	t.Setenv("VOICEFLOW_AGENT_ID", "agent-from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AgentID != "agent-from-env" {
		t.Errorf("AgentID = %v, want agent-from-env", cfg.AgentID)
	}
}
