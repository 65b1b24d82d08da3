package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "imagedepot:/srv/images", cfg.DepotSource())
	assert.Equal(t, "/mnt/images/archive", cfg.ArchiveDir())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
depot_host: depot.lab
depot_export: /export/golden
target_device: /dev/mmcblk0
probe_timeout: 2s
require_network: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "depot.lab", cfg.DepotHost)
	assert.Equal(t, "depot.lab:/export/golden", cfg.DepotSource())
	assert.Equal(t, "/dev/mmcblk0", cfg.TargetDevice)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.False(t, cfg.RequireNetwork)
	// untouched keys keep their defaults
	assert.Equal(t, "/mnt/usb", cfg.LocalMountPoint)
	assert.Equal(t, "4M", cfg.BlockSize)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "depot_hostname: typo\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "depot_host: a\n---\ndepot_host: b\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty depot host", func(c *Config) { c.DepotHost = " " }},
		{"relative target", func(c *Config) { c.TargetDevice = "sda" }},
		{"relative mount point", func(c *Config) { c.LocalMountPoint = "mnt/usb" }},
		{"escaping archive dir", func(c *Config) { c.ArchiveSubdir = "../etc" }},
		{"absolute archive dir", func(c *Config) { c.ArchiveSubdir = "/archive" }},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeout = 0 }},
		{"negative kill grace", func(c *Config) { c.KillGrace = -time.Second }},
		{"zero settle timeout", func(c *Config) { c.SettleTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
