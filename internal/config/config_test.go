package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Smartlead.BaseURL != "https://server.smartlead.ai/api/v1" {
		t.Errorf("default smartlead base url = %q", cfg.Smartlead.BaseURL)
	}
	if cfg.Tracking.MinHumanSeconds != 5 {
		t.Errorf("default min human seconds = %v, want 5", cfg.Tracking.MinHumanSeconds)
	}
	if cfg.Tracking.DesktopClientSeconds != 45 {
		t.Errorf("default desktop seconds = %v, want 45", cfg.Tracking.DesktopClientSeconds)
	}
	if cfg.Redis.DedupTTLHrs != 24 {
		t.Errorf("default dedup ttl = %d, want 24", cfg.Redis.DedupTTLHrs)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  url: postgres://localhost/leads
tracking:
  min_human_seconds: 7
  desktop_client_seconds: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/leads" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Tracking.MinHumanSeconds != 7 {
		t.Errorf("min human seconds = %v, want 7", cfg.Tracking.MinHumanSeconds)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://file/db\n")

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SMARTLEAD_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PORT", "3000")

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("database url = %q, want env override", cfg.Database.URL)
	}
	if cfg.Smartlead.APIKey != "sk-test" {
		t.Errorf("smartlead api key = %q", cfg.Smartlead.APIKey)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis = %+v, want enabled at redis:6379", cfg.Redis)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Server.Port)
	}
}
