package config

import (
	"os"
	"path/filepath"
	"testing"
)

// pointConfigAt redirects ConfigPath into a temp dir for the test.
func pointConfigAt(t *testing.T, path string) {
	t.Helper()
	old := ConfigPath
	ConfigPath = path
	t.Cleanup(func() { ConfigPath = old })
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	pointConfigAt(t, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8844" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Client.BaseURL != "http://127.0.0.1:8844" {
		t.Errorf("Client.BaseURL = %q", cfg.Client.BaseURL)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	pointConfigAt(t, filepath.Join(t.TempDir(), "nested", "config.yaml"))

	cfg := Default()
	cfg.Server.Tokens = []string{"tok-1"}
	cfg.Client.Token = "tok-1"
	cfg.Anthropic.APIKey = "sk-test"
	cfg.Notify.WebhookURL = "https://hooks.example.com/x"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Server.Tokens) != 1 || loaded.Server.Tokens[0] != "tok-1" {
		t.Errorf("Tokens = %v", loaded.Server.Tokens)
	}
	if loaded.Client.Token != "tok-1" || loaded.Anthropic.APIKey != "sk-test" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Notify.WebhookURL != "https://hooks.example.com/x" {
		t.Errorf("WebhookURL = %q", loaded.Notify.WebhookURL)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	pointConfigAt(t, path)

	// A partial file keeps defaults for everything it does not set.
	if err := os.WriteFile(path, []byte("client:\n  token: partial-tok\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.Token != "partial-tok" {
		t.Errorf("Client.Token = %q", cfg.Client.Token)
	}
	if cfg.Server.Addr != "127.0.0.1:8844" {
		t.Errorf("Server.Addr = %q, defaults should survive a partial file", cfg.Server.Addr)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	pointConfigAt(t, path)

	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Error("invalid YAML should not load")
	}
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	cfg.Server.DataDir = "/var/lib/surveyflow"
	if got := cfg.DBPath(); got != filepath.Join("/var/lib/surveyflow", "surveyflow.db") {
		t.Errorf("DBPath = %q", got)
	}
}
