//go:build !linux

// Package system holds the machine-level side effects.
package system

import "errors"

// ErrUnsupported is returned where the platform cannot be rebooted.
var ErrUnsupported = errors.New("reboot not supported on this platform")

// Rebooter restarts the machine.
type Rebooter struct{}

func (Rebooter) Reboot() error {
	return ErrUnsupported
}
