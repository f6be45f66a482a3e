package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ".soundcheck/logs", cfg.LogDir)
	assert.Equal(t, "xsig", cfg.AnalyzerPath)
	assert.Equal(t, "volcontrol", cfg.VolcontrolPath)
	assert.Equal(t, 25*time.Second, cfg.Duration)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, 5*time.Second, cfg.InitialSettle)
	assert.Equal(t, 30*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, time.Second, cfg.ReadyInterval)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Empty(t, cfg.ArtifactsDir)
	assert.Empty(t, cfg.HistoryDB)
	assert.Empty(t, cfg.LockDir)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, 8, cfg.Devices["xk_216_mc"].Channels)
	assert.Equal(t, 2, cfg.Devices["xk_evk_xu316"].Channels)

	assert.NoError(t, cfg.Validate())
}

// TestLoadConfigValidFile tests loading a valid YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	path := writeConfig(t, `log_level: debug
log_dir: /tmp/soundcheck-logs
analyzer_path: /opt/xmos/bin/xsig
volcontrol_path: /opt/xmos/bin/volcontrol
duration: 10s
settle_delay: 2s
initial_settle: 4s
ready_timeout: 1m
ready_interval: 500ms
artifacts_dir: /var/lib/soundcheck/artifacts
retention_days: 7
history_db: /var/lib/soundcheck/runs.db
lock_dir: /run/soundcheck/locks
devices:
  xk_316_mc:
    channels: 8
    setup_commands:
      - ["xflash", "--id", "0", "app_usb_aud_xk_316_mc.xe"]
    ready_command: ["wait_for_device", "xk_316_mc"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/soundcheck-logs", cfg.LogDir)
	assert.Equal(t, "/opt/xmos/bin/xsig", cfg.AnalyzerPath)
	assert.Equal(t, "/opt/xmos/bin/volcontrol", cfg.VolcontrolPath)
	assert.Equal(t, 10*time.Second, cfg.Duration)
	assert.Equal(t, 2*time.Second, cfg.SettleDelay)
	assert.Equal(t, 4*time.Second, cfg.InitialSettle)
	assert.Equal(t, time.Minute, cfg.ReadyTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ReadyInterval)
	assert.Equal(t, "/var/lib/soundcheck/artifacts", cfg.ArtifactsDir)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, "/var/lib/soundcheck/runs.db", cfg.HistoryDB)
	assert.Equal(t, "/run/soundcheck/locks", cfg.LockDir)

	device, ok := cfg.Device("xk_316_mc")
	require.True(t, ok)
	assert.Equal(t, 8, device.Channels)
	require.Len(t, device.SetupCommands, 1)
	assert.Equal(t, []string{"xflash", "--id", "0", "app_usb_aud_xk_316_mc.xe"}, device.SetupCommands[0])
	assert.Equal(t, []string{"wait_for_device", "xk_316_mc"}, device.ReadyCommand)
}

// TestLoadConfigFileNotExists tests fallback to defaults when file doesn't exist
func TestLoadConfigFileNotExists(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err, "LoadConfig() should not error on missing file")

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 25*time.Second, cfg.Duration)
}

// TestLoadConfigInvalidYAML tests error handling for malformed YAML
func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, `log_level: debug
duration: [this is not valid
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// TestLoadConfigInvalidDuration tests error handling for bad duration strings
func TestLoadConfigInvalidDuration(t *testing.T) {
	path := writeConfig(t, `settle_delay: banana
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle_delay")
}

// TestLoadConfigPartialValues tests that partial config merges with defaults
func TestLoadConfigPartialValues(t *testing.T) {
	path := writeConfig(t, `log_level: warn
duration: 15s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Set values
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Duration)

	// Defaults for unset fields
	assert.Equal(t, ".soundcheck/logs", cfg.LogDir)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Len(t, cfg.Devices, 2)
}

// TestLoadConfigDeviceMerge tests that file devices merge onto the built-in table
func TestLoadConfigDeviceMerge(t *testing.T) {
	path := writeConfig(t, `devices:
  xk_216_mc:
    channels: 10
  custom_board:
    channels: 4
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 3)

	// Overridden by the file
	assert.Equal(t, 10, cfg.Devices["xk_216_mc"].Channels)
	// New entry from the file
	assert.Equal(t, 4, cfg.Devices["custom_board"].Channels)
	// Default untouched
	assert.Equal(t, 2, cfg.Devices["xk_evk_xu316"].Channels)
}

// TestLoadConfigRetentionZero tests that an explicit zero disables pruning
func TestLoadConfigRetentionZero(t *testing.T) {
	path := writeConfig(t, `retention_days: 0
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.RetentionDays)
}

// TestLoadConfigFromDir tests loading config from .soundcheck/config.yaml
func TestLoadConfigFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".soundcheck")
	require.NoError(t, os.MkdirAll(configDir, 0755))

	content := `log_level: trace
duration: 5s
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644))

	cfg, err := LoadConfigFromDir(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Duration)
}

// TestLoadConfigFromDirNotExists tests loading when .soundcheck dir doesn't exist
func TestLoadConfigFromDirNotExists(t *testing.T) {
	cfg, err := LoadConfigFromDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
}

// TestMergeWithFlags tests CLI flag precedence over config values
func TestMergeWithFlags(t *testing.T) {
	t.Run("all flags override", func(t *testing.T) {
		cfg := DefaultConfig()

		logLevel := "debug"
		logDir := "/custom/logs"
		duration := 40 * time.Second
		analyzerPath := "/usr/local/bin/xsig"
		volcontrolPath := "/usr/local/bin/volcontrol"

		cfg.MergeWithFlags(&logLevel, &logDir, &duration, &analyzerPath, &volcontrolPath)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "/custom/logs", cfg.LogDir)
		assert.Equal(t, 40*time.Second, cfg.Duration)
		assert.Equal(t, "/usr/local/bin/xsig", cfg.AnalyzerPath)
		assert.Equal(t, "/usr/local/bin/volcontrol", cfg.VolcontrolPath)
	})

	t.Run("nil flags leave config untouched", func(t *testing.T) {
		cfg := DefaultConfig()

		cfg.MergeWithFlags(nil, nil, nil, nil, nil)

		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, ".soundcheck/logs", cfg.LogDir)
		assert.Equal(t, 25*time.Second, cfg.Duration)
		assert.Equal(t, "xsig", cfg.AnalyzerPath)
		assert.Equal(t, "volcontrol", cfg.VolcontrolPath)
	})
}

// TestValidate tests configuration validation rules
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "empty analyzer path",
			mutate:  func(c *Config) { c.AnalyzerPath = "" },
			wantErr: "analyzer_path",
		},
		{
			name:    "empty volcontrol path",
			mutate:  func(c *Config) { c.VolcontrolPath = "" },
			wantErr: "volcontrol_path",
		},
		{
			name:    "zero duration",
			mutate:  func(c *Config) { c.Duration = 0 },
			wantErr: "duration",
		},
		{
			name:    "negative settle delay",
			mutate:  func(c *Config) { c.SettleDelay = -time.Second },
			wantErr: "settle_delay",
		},
		{
			name:    "negative initial settle",
			mutate:  func(c *Config) { c.InitialSettle = -time.Second },
			wantErr: "initial_settle",
		},
		{
			name:    "negative ready timeout",
			mutate:  func(c *Config) { c.ReadyTimeout = -time.Second },
			wantErr: "ready_timeout",
		},
		{
			name:    "zero ready interval",
			mutate:  func(c *Config) { c.ReadyInterval = 0 },
			wantErr: "ready_interval",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.RetentionDays = -1 },
			wantErr: "retention_days",
		},
		{
			name: "device without channels",
			mutate: func(c *Config) {
				c.Devices["broken"] = DeviceConfig{Channels: 0}
			},
			wantErr: "device broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestDeviceLookup tests the device table accessors
func TestDeviceLookup(t *testing.T) {
	cfg := DefaultConfig()

	device, ok := cfg.Device("xk_216_mc")
	require.True(t, ok)
	assert.Equal(t, 8, device.Channels)

	_, ok = cfg.Device("unknown_board")
	assert.False(t, ok)

	assert.Equal(t, []string{"xk_216_mc", "xk_evk_xu316"}, cfg.DeviceNames())
}
