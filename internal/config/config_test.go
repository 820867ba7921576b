package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadGlobal(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Global{DefaultProfile: "seller"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadGlobal(path)
	if err != nil {
		t.Fatalf("LoadGlobal() error = %v", err)
	}
	if loaded.DefaultProfile != "seller" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "seller")
	}
}

func TestLoadGlobalMissing(t *testing.T) {
	if _, err := LoadGlobal("/nonexistent/config.toml"); err == nil {
		t.Error("LoadGlobal() expected error for missing file")
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "gsm.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Worker.CacheVersion != "v1.0.0" {
		t.Errorf("CacheVersion = %q, want v1.0.0", cfg.Worker.CacheVersion)
	}
	if cfg.Worker.Limits.Images != 100 || cfg.Worker.Limits.API != 50 || cfg.Worker.Limits.Dynamic != 50 || cfg.Worker.Limits.Static != 0 {
		t.Errorf("Limits = %+v, want images 100, api 50, dynamic 50, static 0", cfg.Worker.Limits)
	}
	if cfg.Messaging.ReconnectDelay.Duration != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Messaging.ReconnectDelay)
	}
	if cfg.Messaging.TypingIdle.Duration != 3*time.Second {
		t.Errorf("TypingIdle = %v, want 3s", cfg.Messaging.TypingIdle)
	}
	if got := cfg.API.BaseURL(); got != "http://localhost:8080/api/v1" {
		t.Errorf("BaseURL() = %q", got)
	}
	if got := cfg.API.WSURL(); got != "ws://localhost:8080/api/v1/ws/websocket" {
		t.Errorf("WSURL() = %q", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsm.toml")
	content := `
[api]
origin = "https://gamersstation.sa/"

[worker]
cache_version = "v2.0.0"

[worker.limits]
images = 10

[messaging]
reconnect_delay = "750ms"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.API.BaseURL(); got != "https://gamersstation.sa/api/v1" {
		t.Errorf("BaseURL() = %q", got)
	}
	if got := cfg.API.WSURL(); got != "wss://gamersstation.sa/api/v1/ws/websocket" {
		t.Errorf("WSURL() = %q", got)
	}
	if cfg.Worker.CacheVersion != "v2.0.0" {
		t.Errorf("CacheVersion = %q, want v2.0.0", cfg.Worker.CacheVersion)
	}
	if cfg.Worker.Limits.Images != 10 {
		t.Errorf("Limits.Images = %d, want 10", cfg.Worker.Limits.Images)
	}
	// Untouched keys keep their defaults.
	if cfg.Worker.Limits.API != 50 {
		t.Errorf("Limits.API = %d, want 50", cfg.Worker.Limits.API)
	}
	if cfg.Messaging.ReconnectDelay.Duration != 750*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 750ms", cfg.Messaging.ReconnectDelay)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsm.toml")
	if err := os.WriteFile(path, []byte("[messaging]\ntyping_idle = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid duration")
	}
}

func TestSaveRoundTripsProfileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsm.toml")
	cfg := Default()
	cfg.UI.Language = "en"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.UI.Language != "en" || loaded.Messaging.TypingIdle.Duration != 3*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Global{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
