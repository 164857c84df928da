package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir, filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Registry.Dir != filepath.Join(dir, "registry") {
		t.Errorf("registry.dir: got %q", cfg.Registry.Dir)
	}
	if cfg.Gate.StalenessWindowMin != 60 {
		t.Errorf("staleness window: got %d, want 60", cfg.Gate.StalenessWindowMin)
	}
	if cfg.Topology.Variant != "main" {
		t.Errorf("variant: got %q, want main", cfg.Topology.Variant)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `topology:
  variant: cd
gate:
  staleness_window_min: 15
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir, path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Topology.Variant != "cd" {
		t.Errorf("variant: got %q, want cd", cfg.Topology.Variant)
	}
	if cfg.Gate.StalenessWindowMin != 15 {
		t.Errorf("staleness window: got %d, want 15", cfg.Gate.StalenessWindowMin)
	}
	// unset sections keep their defaults
	if cfg.Inbox.ScanIntervalSec != 30 {
		t.Errorf("scan interval: got %d, want 30", cfg.Inbox.ScanIntervalSec)
	}
}

func TestConfigValidate(t *testing.T) {
	good := DefaultConfig(t.TempDir())

	bad := good
	bad.Topology.Variant = "experimental"
	if err := bad.Validate(); err == nil {
		t.Error("unknown variant should fail validation")
	}

	bad = good
	bad.Gate.StalenessWindowMin = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero staleness window should fail validation")
	}

	bad = good
	bad.Registry.Dir = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty registry dir should fail validation")
	}
}
