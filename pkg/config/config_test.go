package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp runs the test from a fresh directory holding the given config.yaml.
func chdirTemp(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t, "")

	cfg, err := Load("config.yaml", "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Version != "dev" {
		t.Errorf("expected Version=dev, got %s", cfg.Version)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.Window != time.Minute || cfg.RateLimit.SafetyBuffer != time.Second {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Classifier.Provider != "gemini" {
		t.Errorf("expected gemini provider by default, got %s", cfg.Classifier.Provider)
	}
	if cfg.Classifier.MaxConcurrentImages != 3 {
		t.Errorf("expected 3 concurrent images, got %d", cfg.Classifier.MaxConcurrentImages)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without a host")
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirTemp(t, `
port: "9000"
database:
  host: "db.example.com"
  database: "inspections"
rate_limit:
  max_requests: 5
classifier:
  provider: "openai"
  model: "gpt-4o"
`)
	t.Setenv("PORT", "9100")
	t.Setenv("CLASSIFIER_API_KEY", "sk-test")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load("config.yaml", "test")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("expected Port=9100 (from env), got %s", cfg.Port)
	}
	if cfg.Database.Host != "db.example.com" || cfg.Database.Database != "inspections" {
		t.Errorf("expected database from yaml, got %+v", cfg.Database)
	}
	if cfg.RateLimit.MaxRequests != 5 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Classifier.APIKey != "sk-test" || cfg.Classifier.Model != "gpt-4o" {
		t.Errorf("unexpected classifier config: %+v", cfg.Classifier)
	}
}

func TestLoad_APIKeyNotReadFromYAML(t *testing.T) {
	chdirTemp(t, `
classifier:
  api_key: "leaked"
`)
	t.Setenv("CLASSIFIER_API_KEY", "")

	cfg, err := Load("config.yaml", "test")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Classifier.APIKey != "" {
		t.Errorf("api key must only come from the environment, got %q", cfg.Classifier.APIKey)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t, "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CLASSIFIER_MOCK_MODE=true\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CLASSIFIER_MOCK_MODE") })

	cfg, err := Load("config.yaml", "test")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.Classifier.MockMode {
		t.Error("expected mock mode from .env")
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	chdirTemp(t, `
classifier:
  provider: "llama"
`)

	_, err := Load("config.yaml", "test")
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestLoad_RejectsNonPositiveLimit(t *testing.T) {
	chdirTemp(t, `
rate_limit:
  max_requests: -1
`)

	if _, err := Load("config.yaml", "test"); err == nil {
		t.Fatal("expected error for negative max_requests")
	}
}

func TestConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=h port=5433 user=u password=p dbname=d sslmode=disable"
	if got := c.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
