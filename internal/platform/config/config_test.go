package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv_fallback(t *testing.T) {
	t.Setenv("BO_TEST_STR", "")
	if got := GetEnv("BO_TEST_STR", "dflt"); got != "dflt" {
		t.Errorf("GetEnv: got %q, want dflt", got)
	}
	t.Setenv("BO_TEST_STR", "set")
	if got := GetEnv("BO_TEST_STR", "dflt"); got != "set" {
		t.Errorf("GetEnv: got %q, want set", got)
	}
}

func TestGetEnvInt_invalid(t *testing.T) {
	t.Setenv("BO_TEST_INT", "abc")
	if got := GetEnvInt("BO_TEST_INT", 7); got != 7 {
		t.Errorf("GetEnvInt: got %d, want 7", got)
	}
	t.Setenv("BO_TEST_INT", "12")
	if got := GetEnvInt("BO_TEST_INT", 7); got != 12 {
		t.Errorf("GetEnvInt: got %d, want 12", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("BO_TEST_FLOAT", "0.25")
	if got := GetEnvFloat("BO_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("GetEnvFloat: got %v, want 0.25", got)
	}
	t.Setenv("BO_TEST_FLOAT", "x")
	if got := GetEnvFloat("BO_TEST_FLOAT", 1); got != 1 {
		t.Errorf("GetEnvFloat: got %v, want fallback", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("BO_TEST_DUR", "150ms")
	if got := GetEnvDuration("BO_TEST_DUR", time.Second); got != 150*time.Millisecond {
		t.Errorf("GetEnvDuration: got %v", got)
	}
	t.Setenv("BO_TEST_DUR", "300")
	if got := GetEnvDuration("BO_TEST_DUR", time.Second); got != 300*time.Millisecond {
		t.Errorf("GetEnvDuration bare int: got %v", got)
	}
	t.Setenv("BO_TEST_DUR", "soon")
	if got := GetEnvDuration("BO_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration invalid: got %v", got)
	}
}

func TestLoad_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BO_TEST_LOADED=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BO_TEST_LOADED") })
	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("BO_TEST_LOADED", ""); got != "yes" {
		t.Errorf("expected loaded value, got %q", got)
	}
}

func TestLoad_missing(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}
