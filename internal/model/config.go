package model

// Config is convoy's on-disk configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Topology TopologyConfig `yaml:"topology"`
	Gate     GateConfig     `yaml:"gate"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type RegistryConfig struct {
	// Dir holds one application record file per registered application.
	Dir string `yaml:"dir"`
}

type InboxConfig struct {
	// Dir is watched for completion report files dropped by the build system.
	Dir        string `yaml:"dir"`
	ArchiveDir string `yaml:"archive_dir"`
	// ScanIntervalSec bounds how stale the inbox can get if file events are
	// lost; the daemon rescans on this interval regardless.
	ScanIntervalSec int     `yaml:"scan_interval_sec"`
	DebounceSec     float64 `yaml:"debounce_sec"`
}

type TopologyConfig struct {
	// File overrides the built-in stage table when set.
	File    string `yaml:"file,omitempty"`
	Variant string `yaml:"variant"`
}

type GateConfig struct {
	// StalenessWindowMin is how long after its trigger a job without a
	// completion is still considered running.
	StalenessWindowMin int `yaml:"staleness_window_min"`
}

type AuditConfig struct {
	Path         string `yaml:"path"`
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}
