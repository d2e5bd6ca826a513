package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSeedsOmittedFieldsFromDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("max_error_count: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cm := &ConfigManager{configPath: path}
	if err := cm.load(); err != nil {
		t.Fatal(err)
	}

	if cm.config.MaxErrorCount != 9 {
		t.Errorf("MaxErrorCount = %d, want 9 (from file)", cm.config.MaxErrorCount)
	}
	// sticky_session wasn't in the file at all; it must keep the default
	// Enabled: true rather than zeroing to false.
	if !cm.config.StickySession.Enabled {
		t.Error("StickySession.Enabled = false, want true (default preserved)")
	}
	if cm.config.StickySession.TTL != DefaultGatewayConfig().StickySession.TTL {
		t.Errorf("StickySession.TTL = %v, want default %v", cm.config.StickySession.TTL, DefaultGatewayConfig().StickySession.TTL)
	}
}

func TestLoadOverridesDefaultsExplicitly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "sticky_session:\n  enabled: false\n  ttl_ms: 5000000000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cm := &ConfigManager{configPath: path}
	if err := cm.load(); err != nil {
		t.Fatal(err)
	}

	if cm.config.StickySession.Enabled {
		t.Error("StickySession.Enabled = true, want false (explicit file value)")
	}
	if cm.config.StickySession.TTL != 5*time.Second {
		t.Errorf("StickySession.TTL = %v, want 5s", cm.config.StickySession.TTL)
	}
}

func TestNewConfigManagerFallsBackToDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cm, err := NewConfigManager(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	defer cm.Close()

	if cm.GetConfig().MaxErrorCount != DefaultGatewayConfig().MaxErrorCount {
		t.Error("expected default MaxErrorCount when no config file is present")
	}
}
