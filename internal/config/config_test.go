package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"CERBERUS_ENV", "CERBERUS_HTTP_ADDR", "CERBERUS_DB_PATH", "CERBERUS_LOCK_PIN",
		"CERBERUS_UNLOCK_DURATION", "CERBERUS_FINGERPRINT_PORT", "CERBERUS_CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	if cfg.HTTPAddr != ":5000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Env != "dev" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.DBPath != "./data/cerberus.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LockPin != "GPIO18" || !cfg.LockedHigh {
		t.Errorf("lock pin = %q lockedHigh=%v", cfg.LockPin, cfg.LockedHigh)
	}
	if cfg.UnlockDuration != 5*time.Second || cfg.VerificationTimeout != 30*time.Second {
		t.Errorf("durations = %v / %v", cfg.UnlockDuration, cfg.VerificationTimeout)
	}
	if cfg.FingerprintPort != "" {
		t.Errorf("FingerprintPort = %q", cfg.FingerprintPort)
	}
	if diff := cmp.Diff([]string{"*"}, cfg.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultTuning(), cfg.Tuning); diff != "" {
		t.Errorf("Tuning (-want +got):\n%s", diff)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CERBERUS_ENV", "PROD")
	t.Setenv("CERBERUS_UNLOCK_DURATION", "8")
	t.Setenv("CERBERUS_VERIFICATION_TIMEOUT", "45s")
	t.Setenv("CERBERUS_FACE_TOLERANCE", "0.42")
	t.Setenv("CERBERUS_MOTION_PIXEL_THRESHOLD", "1200")
	t.Setenv("CERBERUS_MOTION_ANALYSIS_WIDTH", "160")
	t.Setenv("CERBERUS_LOCKED_HIGH", "false")
	t.Setenv("CERBERUS_CORS_ORIGINS", " http://a.local , ,http://b.local")

	cfg := FromEnv()
	if cfg.Env != "prod" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.UnlockDuration != 8*time.Second {
		t.Errorf("UnlockDuration = %v", cfg.UnlockDuration)
	}
	if cfg.VerificationTimeout != 45*time.Second {
		t.Errorf("VerificationTimeout = %v", cfg.VerificationTimeout)
	}
	if cfg.Tuning.FaceTolerance != 0.42 {
		t.Errorf("FaceTolerance = %v", cfg.Tuning.FaceTolerance)
	}
	if cfg.Tuning.MotionPixelThreshold != 1200 {
		t.Errorf("MotionPixelThreshold = %d", cfg.Tuning.MotionPixelThreshold)
	}
	if cfg.Tuning.MotionAnalysisWidth != 160 {
		t.Errorf("MotionAnalysisWidth = %d", cfg.Tuning.MotionAnalysisWidth)
	}
	if cfg.LockedHigh {
		t.Error("expected LockedHigh=false")
	}
	if diff := cmp.Diff([]string{"http://a.local", "http://b.local"}, cfg.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins (-want +got):\n%s", diff)
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CERBERUS_ENV", "staging")
	t.Setenv("CERBERUS_LOG_CAPACITY", "-3")
	t.Setenv("CERBERUS_MOTION_COOLDOWN", "soon")

	cfg := FromEnv()
	if cfg.Env != "dev" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.Tuning.LogCapacity != 50 {
		t.Errorf("LogCapacity = %d", cfg.Tuning.LogCapacity)
	}
	if cfg.Tuning.MotionCooldown != 10*time.Second {
		t.Errorf("MotionCooldown = %v", cfg.Tuning.MotionCooldown)
	}
}

func TestApplyTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "motion_pixel_threshold: 1500\nmotion_cooldown: 20s\nface_tolerance: 0.45\nmotion_pixel_delta: 999\nmotion_analysis_width: 320\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := Config{Tuning: DefaultTuning()}
	if err := cfg.ApplyTuningFile(path); err != nil {
		t.Fatalf("ApplyTuningFile: %v", err)
	}

	want := DefaultTuning()
	want.MotionPixelThreshold = 1500
	want.MotionCooldown = 20 * time.Second
	want.FaceTolerance = 0.45
	want.MotionAnalysisWidth = 320
	if diff := cmp.Diff(want, cfg.Tuning); diff != "" {
		t.Errorf("Tuning (-want +got):\n%s", diff)
	}
}

func TestApplyTuningFile_Missing(t *testing.T) {
	cfg := Config{Tuning: DefaultTuning()}
	if err := cfg.ApplyTuningFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
