// Package config loads and validates soundcheck configuration.
//
// Configuration lives in .soundcheck/config.yaml. Every field has a
// default, so a missing file is not an error: the bench works out of
// the box with the built-in device table and binary names on PATH.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig describes one device under test.
type DeviceConfig struct {
	// Channels is the analogue channel count of the device
	Channels int `yaml:"channels"`

	// SetupCommands are run before each case on this device
	// (firmware flashing, mixer routing). Each entry is one argv.
	SetupCommands [][]string `yaml:"setup_commands,omitempty"`

	// ReadyCommand is polled until it succeeds before the analyzer
	// starts. Empty means the device is assumed ready.
	ReadyCommand []string `yaml:"ready_command,omitempty"`
}

// Config represents soundcheck configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// AnalyzerPath is the signal-analyzer binary
	AnalyzerPath string `yaml:"analyzer_path"`

	// VolcontrolPath is the volume-control binary
	VolcontrolPath string `yaml:"volcontrol_path"`

	// Duration is the default analyzer run time per case
	Duration time.Duration `yaml:"duration"`

	// SettleDelay is the wait after each volume command
	SettleDelay time.Duration `yaml:"settle_delay"`

	// InitialSettle is the wait after analyzer start before volume changes
	InitialSettle time.Duration `yaml:"initial_settle"`

	// ReadyTimeout bounds readiness probing (0 = single attempt)
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// ReadyInterval is the pause between readiness probe attempts
	ReadyInterval time.Duration `yaml:"ready_interval"`

	// ArtifactsDir stores compressed run transcripts
	// (empty = resolved under the soundcheck home)
	ArtifactsDir string `yaml:"artifacts_dir"`

	// RetentionDays is how long transcripts are kept (0 = forever)
	RetentionDays int `yaml:"retention_days"`

	// HistoryDB is the run-history database path
	// (empty = resolved under the soundcheck home)
	HistoryDB string `yaml:"history_db"`

	// LockDir holds per-device lock files
	// (empty = resolved under the soundcheck home)
	LockDir string `yaml:"lock_dir"`

	// Devices maps device names to their bench configuration
	Devices map[string]DeviceConfig `yaml:"devices"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		LogDir:         ".soundcheck/logs",
		AnalyzerPath:   "xsig",
		VolcontrolPath: "volcontrol",
		Duration:       25 * time.Second,
		SettleDelay:    3 * time.Second,
		InitialSettle:  5 * time.Second,
		ReadyTimeout:   30 * time.Second,
		ReadyInterval:  time.Second,
		ArtifactsDir:   "",
		RetentionDays:  30,
		HistoryDB:      "",
		LockDir:        "",
		Devices: map[string]DeviceConfig{
			"xk_216_mc":    {Channels: 8},
			"xk_evk_xu316": {Channels: 2},
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, return defaults (not an error)
		return cfg, nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	// Use a temporary struct to handle duration parsing
	type yamlConfig struct {
		LogLevel       string                  `yaml:"log_level"`
		LogDir         string                  `yaml:"log_dir"`
		AnalyzerPath   string                  `yaml:"analyzer_path"`
		VolcontrolPath string                  `yaml:"volcontrol_path"`
		Duration       string                  `yaml:"duration"`
		SettleDelay    string                  `yaml:"settle_delay"`
		InitialSettle  string                  `yaml:"initial_settle"`
		ReadyTimeout   string                  `yaml:"ready_timeout"`
		ReadyInterval  string                  `yaml:"ready_interval"`
		ArtifactsDir   string                  `yaml:"artifacts_dir"`
		RetentionDays  int                     `yaml:"retention_days"`
		HistoryDB      string                  `yaml:"history_db"`
		LockDir        string                  `yaml:"lock_dir"`
		Devices        map[string]DeviceConfig `yaml:"devices"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-empty values from file (merging with defaults)
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.AnalyzerPath != "" {
		cfg.AnalyzerPath = yamlCfg.AnalyzerPath
	}
	if yamlCfg.VolcontrolPath != "" {
		cfg.VolcontrolPath = yamlCfg.VolcontrolPath
	}
	if yamlCfg.ArtifactsDir != "" {
		cfg.ArtifactsDir = yamlCfg.ArtifactsDir
	}
	if yamlCfg.HistoryDB != "" {
		cfg.HistoryDB = yamlCfg.HistoryDB
	}
	if yamlCfg.LockDir != "" {
		cfg.LockDir = yamlCfg.LockDir
	}

	durations := []struct {
		name  string
		value string
		field *time.Duration
	}{
		{"duration", yamlCfg.Duration, &cfg.Duration},
		{"settle_delay", yamlCfg.SettleDelay, &cfg.SettleDelay},
		{"initial_settle", yamlCfg.InitialSettle, &cfg.InitialSettle},
		{"ready_timeout", yamlCfg.ReadyTimeout, &cfg.ReadyTimeout},
		{"ready_interval", yamlCfg.ReadyInterval, &cfg.ReadyInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.name, d.value, err)
		}
		*d.field = parsed
	}

	// retention_days: 0 is meaningful (keep forever), so an explicit zero
	// must not be swallowed by the non-zero merge. Detect presence instead.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if _, exists := rawMap["retention_days"]; exists {
			cfg.RetentionDays = yamlCfg.RetentionDays
		}
	}

	// Devices from the file are merged onto the built-in table, so the
	// defaults stay known unless a file entry overrides them by name.
	for name, device := range yamlCfg.Devices {
		cfg.Devices[name] = device
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .soundcheck/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".soundcheck", "config.yaml")
	return LoadConfig(configPath)
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
// This allows CLI flags to take precedence over config file settings
func (c *Config) MergeWithFlags(logLevel *string, logDir *string, duration *time.Duration, analyzerPath *string, volcontrolPath *string) {
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if duration != nil {
		c.Duration = *duration
	}
	if analyzerPath != nil {
		c.AnalyzerPath = *analyzerPath
	}
	if volcontrolPath != nil {
		c.VolcontrolPath = *volcontrolPath
	}
}

// Device looks up a device by name in the device table.
func (c *Config) Device(name string) (DeviceConfig, bool) {
	device, ok := c.Devices[name]
	return device, ok
}

// DeviceNames returns the known device names in sorted order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for name := range c.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	// Validate log_level
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.AnalyzerPath == "" {
		return fmt.Errorf("analyzer_path cannot be empty")
	}
	if c.VolcontrolPath == "" {
		return fmt.Errorf("volcontrol_path cannot be empty")
	}

	if c.Duration <= 0 {
		return fmt.Errorf("duration must be > 0, got %v", c.Duration)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must be >= 0, got %v", c.SettleDelay)
	}
	if c.InitialSettle < 0 {
		return fmt.Errorf("initial_settle must be >= 0, got %v", c.InitialSettle)
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout must be >= 0, got %v", c.ReadyTimeout)
	}
	if c.ReadyInterval <= 0 {
		return fmt.Errorf("ready_interval must be > 0, got %v", c.ReadyInterval)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be >= 0, got %d", c.RetentionDays)
	}

	for _, name := range c.DeviceNames() {
		if c.Devices[name].Channels <= 0 {
			return fmt.Errorf("device %s: channels must be > 0, got %d", name, c.Devices[name].Channels)
		}
	}

	return nil
}
