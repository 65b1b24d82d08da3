//go:build !linux

package probe

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("mounting is only supported on linux")

// SystemMounter is unavailable off linux; every mount check fails.
type SystemMounter struct {
	Path string
}

func (m SystemMounter) Unmount(context.Context, string) error { return nil }

func (m SystemMounter) Mount(context.Context, string, string, string, string) error {
	return errUnsupported
}
