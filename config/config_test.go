package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// These tests use t.Setenv and therefore cannot run in parallel.

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "STATIC_DIR", "CERT_FILE", "CERT_KEY",
		"FEATURE_LENGTH", "PITCH_FALLBACK_HZ", "ANALYSIS_TIMEOUT_SECONDS", "SCRATCH_DIR",
		"MODEL_PATH", "SCALER_PATH", "LABELS_PATH",
		"HISTORY_BACKEND", "SQLITE_PATH", "MONGODB_URI", "MONGODB_DATABASE", "HISTORY_JSON_PATH",
		"GEMINI_API_KEY", "GEMINI_MODEL", "JWT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	def := Default()
	if cfg.Server.Port != def.Server.Port || cfg.Analysis.FeatureLength != 34 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Analysis.PitchFallbackHz != 150 || cfg.Analysis.MinInputBytes != 1000 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.JWTSecret != DefaultJWTSecret || !cfg.UsesDefaultJWTSecret() {
		t.Fatalf("jwt secret should fall back to the development default, got %q", cfg.JWTSecret)
	}
	if cfg.Analysis.Timeout() != time.Minute {
		t.Fatalf("expected 60s timeout, got %v", cfg.Analysis.Timeout())
	}
}

func TestLoadFileYAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "7000"
analysis:
  feature_length: 40
  timeout_seconds: 0
moods:
  Surprise: Fear
history:
  backend: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PITCH_FALLBACK_HZ", "not-a-number")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("env should override yaml port, got %s", cfg.Server.Port)
	}
	if cfg.Analysis.FeatureLength != 40 {
		t.Fatalf("expected yaml feature length 40, got %d", cfg.Analysis.FeatureLength)
	}
	if cfg.Analysis.HopSize != 512 {
		t.Fatalf("unset yaml keys keep defaults, got hop %d", cfg.Analysis.HopSize)
	}
	if cfg.Analysis.PitchFallbackHz != 150 {
		t.Fatalf("unparsable env should be ignored, got %v", cfg.Analysis.PitchFallbackHz)
	}
	if cfg.Analysis.Timeout() != 0 {
		t.Fatalf("zero timeout disables the deadline, got %v", cfg.Analysis.Timeout())
	}
	if cfg.Moods["Surprise"] != "Fear" || cfg.History.Backend != "json" || cfg.JWTSecret != "s3cret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.UsesDefaultJWTSecret() {
		t.Fatalf("JWT_SECRET override should not count as the default secret")
	}
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestShippedDevConfigParses(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join("dev", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Moods) == 0 || cfg.Artifacts.Model == "" {
		t.Fatalf("dev config incomplete: %+v", cfg)
	}
}
