package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalProvider implements Provider for the kiosk's own filesystem and devices.
type LocalProvider struct {
	fs afero.Fs
}

// NewLocalProvider creates a LocalProvider on fs. A nil fs means the OS filesystem.
func NewLocalProvider(fs afero.Fs) *LocalProvider {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &LocalProvider{fs: fs}
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return p.fs.Stat(path)
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]os.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return afero.ReadDir(p.fs, path)
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return p.fs.Open(path)
}

func (p *LocalProvider) OpenWrite(ctx context.Context, path string) (File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return p.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

func (p *LocalProvider) OpenDevice(ctx context.Context, path string) (File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return p.fs.OpenFile(path, os.O_WRONLY, 0)
}

func (p *LocalProvider) Rename(oldpath, newpath string) error {
	return p.fs.Rename(oldpath, newpath)
}

func (p *LocalProvider) Remove(path string) error {
	return p.fs.Remove(path)
}

// PartialPath is where an archive of path is written until it completes.
// The leading dot keeps it out of the image catalog.
func PartialPath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+".partial")
}

// CheckReadable accepts only existing, readable regular files.
func (p *LocalProvider) CheckReadable(path string) error {
	info, err := p.fs.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	if !p.canAccess(path, info, accessRead) {
		return fmt.Errorf("%s: %w", path, ErrNotReadable)
	}
	return nil
}

// CheckWritableTarget validates path as the destination of an archive.
// exists reports whether a regular file is already there, in which case the
// caller must confirm overwriting it. A new path needs a writable parent.
func (p *LocalProvider) CheckWritableTarget(path string) (exists bool, err error) {
	info, err := p.fs.Stat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return true, fmt.Errorf("%s: %w", path, ErrNotRegular)
		}
		if !p.canAccess(path, info, accessWrite) {
			return true, fmt.Errorf("%s: %w", path, ErrNotWritable)
		}
		return true, nil
	case !os.IsNotExist(err):
		return false, err
	}

	dir := filepath.Dir(path)
	dirInfo, err := p.fs.Stat(dir)
	if err != nil {
		return false, err
	}
	if !dirInfo.IsDir() {
		return false, fmt.Errorf("%s: %w", dir, os.ErrInvalid)
	}
	if !p.canAccess(dir, dirInfo, accessWrite) {
		return false, fmt.Errorf("%s: %w", dir, ErrNotWritable)
	}
	return false, nil
}

// EnsureDir creates dir and its parents.
func (p *LocalProvider) EnsureDir(dir string) error {
	return p.fs.MkdirAll(dir, 0o755)
}

// Size returns the byte length of an opened file or block device by seeking
// to its end. The offset is restored to the start.
func Size(f io.Seeker) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}

func (p *LocalProvider) canAccess(path string, info os.FileInfo, mode accessMode) bool {
	if _, ok := p.fs.(*afero.OsFs); ok {
		return osAccess(path, mode) == nil
	}
	perm := info.Mode().Perm()
	if mode == accessRead {
		return perm&0o444 != 0
	}
	return perm&0o222 != 0
}
