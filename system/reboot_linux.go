// Package system holds the machine-level side effects.
package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Rebooter restarts the machine once buffered writes reach the disks.
type Rebooter struct{}

// Reboot flushes filesystems and restarts. On success it does not return.
func (Rebooter) Reboot() error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
