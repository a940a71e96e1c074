package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		APIURL:         "https://api.example.com/v1",
		SocketURL:      "wss://socket.example.com",
		DefaultSession: "work",
		HTTPTimeoutSec: 30,
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.APIURL != cfg.APIURL {
		t.Errorf("APIURL = %q, want %q", loaded.APIURL, cfg.APIURL)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.HTTPTimeoutSec != 30 {
		t.Errorf("HTTPTimeoutSec = %d, want 30", loaded.HTTPTimeoutSec)
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want default %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.HTTPTimeoutSec != DefaultHTTPTimeoutSec {
		t.Errorf("HTTPTimeoutSec = %d, want %d", cfg.HTTPTimeoutSec, DefaultHTTPTimeoutSec)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROVISION_API_URL", "https://override.example.com")
	t.Setenv("PROVISION_HTTP_TIMEOUT", "5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "https://override.example.com" {
		t.Errorf("APIURL = %q, want env override", cfg.APIURL)
	}
	if cfg.HTTPTimeoutSec != 5 {
		t.Errorf("HTTPTimeoutSec = %d, want 5", cfg.HTTPTimeoutSec)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
