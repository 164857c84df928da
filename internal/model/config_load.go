package model

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no config file exists,
// rooted at baseDir.
func DefaultConfig(baseDir string) Config {
	return Config{
		Registry: RegistryConfig{Dir: filepath.Join(baseDir, "registry")},
		Inbox: InboxConfig{
			Dir:             filepath.Join(baseDir, "inbox"),
			ArchiveDir:      filepath.Join(baseDir, "archive"),
			ScanIntervalSec: 30,
			DebounceSec:     0.3,
		},
		Topology: TopologyConfig{Variant: "main"},
		Gate:     GateConfig{StalenessWindowMin: 60},
		Audit: AuditConfig{
			Path:         filepath.Join(baseDir, "logs", "audit.jsonl"),
			MaxSizeBytes: 100 * 1024 * 1024,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads the config file at path, filling unset fields from the
// defaults for baseDir. A missing file yields the defaults.
func LoadConfig(baseDir, path string) (Config, error) {
	cfg := DefaultConfig(baseDir)

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yamlv3.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c Config) Validate() error {
	if c.Registry.Dir == "" {
		return fmt.Errorf("registry.dir must be set")
	}
	if c.Inbox.Dir == "" {
		return fmt.Errorf("inbox.dir must be set")
	}
	if c.Inbox.ScanIntervalSec <= 0 {
		return fmt.Errorf("inbox.scan_interval_sec must be positive")
	}
	if c.Gate.StalenessWindowMin <= 0 {
		return fmt.Errorf("gate.staleness_window_min must be positive")
	}
	switch c.Topology.Variant {
	case "main", "cd":
	default:
		return fmt.Errorf("topology.variant must be %q or %q, got %q", "main", "cd", c.Topology.Variant)
	}
	return nil
}
