package provider

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
)

// ErrDeviceNotFound is returned when no block device matches a path.
var ErrDeviceNotFound = errors.New("block device not found")

// DeviceInfo describes a disk as reported by the kernel.
type DeviceInfo struct {
	Path      string
	Model     string
	Vendor    string
	SizeBytes uint64
	Removable bool
}

func (d DeviceInfo) String() string {
	var label []string
	for _, s := range []string{d.Vendor, d.Model} {
		if s != "" && s != "unknown" {
			label = append(label, s)
		}
	}
	desc := d.Path
	if len(label) > 0 {
		desc += " (" + strings.Join(label, " ") + ")"
	}
	if d.SizeBytes > 0 {
		desc += ", " + HumanBytes(d.SizeBytes)
	}
	return desc
}

// DescribeDevice looks up the whole disk behind path, e.g. /dev/sda.
func DescribeDevice(path string) (DeviceInfo, error) {
	block, err := ghw.Block()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("read block devices: %w", err)
	}

	name := filepath.Base(path)
	for _, disk := range block.Disks {
		if disk.Name != name {
			continue
		}
		return DeviceInfo{
			Path:      path,
			Model:     disk.Model,
			Vendor:    disk.Vendor,
			SizeBytes: disk.SizeBytes,
			Removable: disk.IsRemovable,
		}, nil
	}
	return DeviceInfo{}, fmt.Errorf("%s: %w", path, ErrDeviceNotFound)
}

// HumanBytes renders a byte count with a binary unit.
func HumanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
