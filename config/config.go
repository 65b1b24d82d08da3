package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the kiosk image ships its configuration file.
const DefaultPath = "/etc/reflash/config.yaml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the fixed filesystem layout and tool settings of a kiosk.
// None of these values are negotiated at runtime.
type Config struct {
	// DepotHost is the network host serving the image share.
	DepotHost string `yaml:"depot_host"`
	// DepotExport is the exported directory on DepotHost.
	DepotExport string `yaml:"depot_export"`
	// GatewayAddr is pinged first to decide whether the network is up at all.
	GatewayAddr string `yaml:"gateway_addr"`

	NetworkMountPoint   string `yaml:"network_mount_point"`
	NetworkMountType    string `yaml:"network_mount_type"`
	NetworkMountOptions string `yaml:"network_mount_options"`
	// ArchiveSubdir is created beneath NetworkMountPoint for archived devices.
	ArchiveSubdir string `yaml:"archive_subdir"`

	LocalMountDevice string `yaml:"local_mount_device"`
	LocalMountPoint  string `yaml:"local_mount_point"`

	// TargetDevice is the raw block device written by Load and read by Archive.
	TargetDevice string `yaml:"target_device"`

	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// RequireNetwork makes a missing network fatal at startup.
	RequireNetwork bool `yaml:"require_network"`

	PVPath    string `yaml:"pv_path"`
	DDPath    string `yaml:"dd_path"`
	BlockSize string `yaml:"block_size"`

	// SettleTimeout is how long a pipeline may keep running after reporting 100%.
	SettleTimeout time.Duration `yaml:"settle_timeout"`
	// KillGrace separates SIGTERM from SIGKILL when a pipeline is stopped.
	KillGrace time.Duration `yaml:"kill_grace"`

	StateDir string `yaml:"state_dir"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration of a stock kiosk.
func Default() Config {
	return Config{
		DepotHost:           "imagedepot",
		DepotExport:         "/srv/images",
		GatewayAddr:         "192.168.1.1",
		NetworkMountPoint:   "/mnt/images",
		NetworkMountType:    "nfs",
		NetworkMountOptions: "ro,nolock,soft",
		ArchiveSubdir:       "archive",
		LocalMountDevice:    "/dev/sdb1",
		LocalMountPoint:     "/mnt/usb",
		TargetDevice:        "/dev/sda",
		ProbeTimeout:        5 * time.Second,
		RequireNetwork:      true,
		PVPath:              "pv",
		DDPath:              "dd",
		BlockSize:           "4M",
		SettleTimeout:       30 * time.Second,
		KillGrace:           5 * time.Second,
		StateDir:            "/run/reflash",
		LogFile:             "/var/log/reflash.log",
		LogLevel:            "info",
	}
}

// DepotSource is the mount source of the network share.
func (c Config) DepotSource() string {
	return c.DepotHost + ":" + c.DepotExport
}

// ArchiveDir is the depot directory archives are written into.
func (c Config) ArchiveDir() string {
	return filepath.Join(c.NetworkMountPoint, c.ArchiveSubdir)
}

// Validate reports the first missing or nonsensical setting.
func (c Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"depot_host", c.DepotHost},
		{"depot_export", c.DepotExport},
		{"gateway_addr", c.GatewayAddr},
		{"network_mount_point", c.NetworkMountPoint},
		{"local_mount_device", c.LocalMountDevice},
		{"local_mount_point", c.LocalMountPoint},
		{"target_device", c.TargetDevice},
		{"pv_path", c.PVPath},
		{"dd_path", c.DDPath},
		{"block_size", c.BlockSize},
		{"state_dir", c.StateDir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalid, r.name)
		}
	}

	for _, p := range []struct {
		name, value string
	}{
		{"network_mount_point", c.NetworkMountPoint},
		{"local_mount_point", c.LocalMountPoint},
		{"target_device", c.TargetDevice},
	} {
		if !filepath.IsAbs(p.value) {
			return fmt.Errorf("%w: %s must be an absolute path, got %q", ErrInvalid, p.name, p.value)
		}
	}

	if filepath.IsAbs(c.ArchiveSubdir) || strings.Contains(c.ArchiveSubdir, "..") {
		return fmt.Errorf("%w: archive_subdir must stay beneath the network mount point", ErrInvalid)
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: probe_timeout must be positive", ErrInvalid)
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("%w: settle_timeout must be positive", ErrInvalid)
	}
	if c.KillGrace <= 0 {
		return fmt.Errorf("%w: kill_grace must be positive", ErrInvalid)
	}
	return nil
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
// A missing file at DefaultPath is not an error: the defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("parse config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}
