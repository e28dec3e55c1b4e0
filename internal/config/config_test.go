package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"vmbroker/internal/wire"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmbroker.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, "secret: hunter2\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := fmt.Sprintf("https://localhost:%d", wire.DefaultPort); cfg.AgentURL != want {
		t.Errorf("AgentURL = %q, want %q", cfg.AgentURL, want)
	}
	if cfg.MaxProvisioners != 5 {
		t.Errorf("MaxProvisioners = %d, want 5", cfg.MaxProvisioners)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	writeConfig(t, "listen_addr: \":17444\"\n")
	t.Setenv("VMBROKER_SECRET", "")

	cfg, err := Load()
	if err == nil {
		t.Error("Expected error for missing secret, but got none")
	}
	if cfg != nil {
		t.Error("Expected config to be nil when validation fails")
	}
}

func TestLoadSecretFromEnvironment(t *testing.T) {
	writeConfig(t, "listen_addr: \":17444\"\n")
	t.Setenv("VMBROKER_SECRET", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Secret != "from-env" {
		t.Errorf("Secret = %q, want from-env", cfg.Secret)
	}
}
