package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_PassesValidation(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() should validate, got: %v", err)
	}
}

func TestValidate_RejectsOutOfRangeConfidence(t *testing.T) {
	cfg := Default()
	cfg.ConfidenceThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for confidenceThreshold > 1")
	}
}

func TestValidate_RejectsBadBackoffMultiplier(t *testing.T) {
	cfg := Default()
	cfg.Retry.BackoffMultiplier = 1.0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for backoffMultiplier <= 1.0")
	}
}

func TestValidate_RejectsUnknownSQLDriver(t *testing.T) {
	cfg := Default()
	cfg.SQLIndex.Enabled = true
	cfg.SQLIndex.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported sqlIndex.driver")
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConfidenceThreshold != Default().ConfidenceThreshold {
		t.Errorf("expected default confidenceThreshold, got %v", cfg.ConfidenceThreshold)
	}
}

func TestLoad_ExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("ORCH_STATE_ROOT", "/var/lib/orch")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "state:\n  root: \"${ORCH_STATE_ROOT}\"\nconfidenceThreshold: 0.9\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.State.Root != "/var/lib/orch" {
		t.Errorf("State.Root = %q, want /var/lib/orch", cfg.State.Root)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("ConfidenceThreshold = %v, want 0.9", cfg.ConfidenceThreshold)
	}
}

func TestLoad_DefaultWithDash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "state:\n  root: \"${ORCH_STATE_ROOT:-./fallback}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.State.Root != "./fallback" {
		t.Errorf("State.Root = %q, want ./fallback", cfg.State.Root)
	}
}

func TestExpandEnvVars_Simple(t *testing.T) {
	t.Setenv("FOO", "bar")
	if got := expandEnvVars("value=$FOO"); got != "value=bar" {
		t.Errorf("expandEnvVars() = %q, want value=bar", got)
	}
}

func TestApprovalExpiry_DefaultIsOneHour(t *testing.T) {
	if Default().ApprovalExpiry != time.Hour {
		t.Errorf("ApprovalExpiry = %v, want 1h", Default().ApprovalExpiry)
	}
}
