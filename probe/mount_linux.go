//go:build linux

package probe

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// SystemMounter detaches with umount(2) and attaches through mount(8),
// which resolves filesystem types and NFS options on its own.
type SystemMounter struct {
	// Path of the mount binary, "mount" when empty.
	Path string
}

// Unmount lazily detaches target so a stale network mount cannot block it;
// a target that is not a mount point is left alone.
func (m SystemMounter) Unmount(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := unix.Unmount(target, unix.MNT_DETACH)
	if err == nil || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT) {
		return nil
	}
	return err
}

// Mount creates target if needed and attaches source to it.
func (m SystemMounter) Mount(ctx context.Context, source, target, fstype, options string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	bin := m.Path
	if bin == "" {
		bin = "mount"
	}
	return runCommand(ctx, bin, mountArgs(source, target, fstype, options)...)
}
