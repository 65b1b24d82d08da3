package provider

import (
	"context"
	"errors"
	"io"
	"os"
)

var (
	// ErrNotRegular is returned when a path exists but is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
	// ErrNotReadable is returned when the current user may not read a path.
	ErrNotReadable = errors.New("not readable")
	// ErrNotWritable is returned when the current user may not write a path
	// or create files in its directory.
	ErrNotWritable = errors.New("not writable")
)

// Provider is the storage backend the transfer engine opens its
// resources through.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (os.FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]os.FileInfo, error)

	// OpenRead opens a file or device for streaming reads.
	OpenRead(ctx context.Context, path string) (File, error)

	// OpenWrite creates or truncates a regular file for streaming writes.
	OpenWrite(ctx context.Context, path string) (File, error)

	// OpenDevice opens an existing block device for writing. It never creates.
	OpenDevice(ctx context.Context, path string) (File, error)

	// Rename moves oldpath to newpath, replacing newpath if it exists.
	Rename(oldpath, newpath string) error

	// Remove deletes the named file.
	Remove(path string) error
}

// File is an opened resource handed to the copy pipeline.
type File interface {
	io.ReadWriteCloser
	io.Seeker
	Name() string
	Sync() error
}
