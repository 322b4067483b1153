package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Mode != "create_or_open" {
		t.Errorf("Mode = %q", cfg.Database.Mode)
	}
	if cfg.Indexer.Stemmer != "english" {
		t.Errorf("Stemmer = %q", cfg.Indexer.Stemmer)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("database:\n  path: /tmp/idx\n  mode: open\nsearch:\n  defaultLimit: 20\n  maxResults: 50\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SC_SEARCH_TIMEOUT", "750ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/idx" || cfg.Database.Mode != "open" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Search.DefaultLimit != 20 {
		t.Errorf("DefaultLimit = %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.Timeout != 750*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Search.Timeout)
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("SC_DATABASE_MODE", "sometimes")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
