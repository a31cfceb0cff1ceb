package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseBytes_Full(t *testing.T) {
	t.Setenv("CSD_TEST_TOKEN", "  secret123\n")
	t.Setenv("CSD_TEST_SEED", "SUAEXAMPLE")

	src := `
variable "region" {
  default = "eu"
  env     = ["CSD_TEST_REGION"]
}

api_url = "https://${var.region}.deploy.example.com"
token   = trimspace(env("CSD_TEST_TOKEN"))

poller {
  interval     = "2s"
  max_attempts = 30
  max_duration = "5m"
}

history {
  limit = 25
}

events {
  servers   = "nats://a:4222,nats://b:4222"
  nkey_seed = env("CSD_TEST_SEED")
  prefix    = lower("CS")
}
`
	cfg, err := ParseBytes([]byte(src), "csd.hcl")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.APIURL != "https://eu.deploy.example.com" {
		t.Errorf("Expected variable interpolation, got %s", cfg.APIURL)
	}
	if cfg.Token != "secret123" {
		t.Errorf("Expected trimmed token, got %q", cfg.Token)
	}
	if cfg.History.Limit != 25 {
		t.Errorf("Expected history limit 25, got %d", cfg.History.Limit)
	}
	if !cfg.EventsEnabled() || cfg.Events.NKeySeed != "SUAEXAMPLE" || cfg.Events.Prefix != "cs" {
		t.Errorf("Unexpected events config: %+v", cfg.Events)
	}

	settings := cfg.PollerSettings()
	if settings.Interval != 2*time.Second || settings.MaxAttempts != 30 || settings.MaxDuration != 5*time.Minute {
		t.Errorf("Unexpected poller settings: %+v", settings)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid configuration, got %v", err)
	}
}

func TestParseBytes_VariableFromEnv(t *testing.T) {
	t.Setenv("CSD_TEST_REGION", "us")

	src := `
variable "region" {
  default = "eu"
  env     = ["CSD_TEST_REGION"]
}

api_url = "https://${var.region}.deploy.example.com"
`
	cfg, err := ParseBytes([]byte(src), "csd.hcl")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.APIURL != "https://us.deploy.example.com" {
		t.Errorf("Expected env to override the default, got %s", cfg.APIURL)
	}
}

func TestParseBytes_Defaults(t *testing.T) {
	cfg, err := ParseBytes([]byte(""), "csd.hcl")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("Expected default API URL, got %s", cfg.APIURL)
	}
	if cfg.EventsEnabled() {
		t.Error("Events must be disabled without an events block")
	}
	settings := cfg.PollerSettings()
	if settings.Interval != 5*time.Second || settings.MaxAttempts != 60 || settings.MaxDuration != 10*time.Minute {
		t.Errorf("Unexpected default poller settings: %+v", settings)
	}
	if cfg.History.Limit != 10 {
		t.Errorf("Expected default history limit 10, got %d", cfg.History.Limit)
	}
}

func TestParseBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `api_url = `},
		{"unknown attribute", `color = "blue"`},
		{"undefined variable", `api_url = var.missing`},
		{"wrong type", `history { limit = "many" }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBytes([]byte(tt.src), "csd.hcl"); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "csd.hcl")
	if err := os.WriteFile(path, []byte(`api_url = "http://127.0.0.1:8080"`), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := ParseFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:8080" {
		t.Errorf("Expected api_url from file, got %s", cfg.APIURL)
	}

	_, err = ParseFile(filepath.Join(dir, "missing.hcl"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("Expected defaults, got %s", cfg.APIURL)
	}

	if _, err := Load("does-not-exist.hcl"); err == nil {
		t.Error("Expected error for a missing explicit path")
	}
}
