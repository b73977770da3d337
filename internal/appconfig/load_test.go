package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected config_version %d, got %d", CurrentConfigVersion, cfg.ConfigVersion)
	}
	if cfg.Engine.Backend != "docker" {
		t.Fatalf("expected docker backend by default, got %q", cfg.Engine.Backend)
	}
	if cfg.Console.MaxLines != 2000 {
		t.Fatalf("expected default max_lines 2000, got %d", cfg.Console.MaxLines)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `config_version: 1
engine:
  backend: containerd
  containerd:
    namespace: buildbox
console:
  max_lines: 500
  flush_interval_ms: 50
  interrupt_commands: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if cfg.Engine.Backend != "containerd" || cfg.Engine.Containerd.Namespace != "buildbox" {
		t.Fatalf("unexpected engine config %+v", cfg.Engine)
	}
	settings := cfg.ConsoleSettings()
	if settings.MaxLines != 500 {
		t.Fatalf("expected max_lines 500, got %d", settings.MaxLines)
	}
	if settings.FlushInterval != 50*time.Millisecond {
		t.Fatalf("expected 50ms flush interval, got %v", settings.FlushInterval)
	}
	if !settings.InterruptCommands {
		t.Fatalf("expected interrupt_commands true")
	}
	if settings.MaxQueueSize != 2000 {
		t.Fatalf("expected default queue size, got %d", settings.MaxQueueSize)
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  backend: docker\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("config_version: 99\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "config_version: 1\nengine:\n  backend: lxd\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "engine.backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("BUILDBOX_TEST_SOCK", "/tmp/test.sock")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "config_version: 1\nengine:\n  address: unix://$BUILDBOX_TEST_SOCK\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if cfg.Engine.Address != "unix:///tmp/test.sock" {
		t.Fatalf("expected env expansion, got %q", cfg.Engine.Address)
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := WriteDefault(path, false); err != nil {
		t.Fatalf("expected first write to succeed, got %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected forced overwrite to succeed, got %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected written default to load, got %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected version %d, got %d", CurrentConfigVersion, cfg.ConfigVersion)
	}
}
