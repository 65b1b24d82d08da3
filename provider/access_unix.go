//go:build unix

package provider

import "golang.org/x/sys/unix"

type accessMode uint32

const (
	accessRead  accessMode = unix.R_OK
	accessWrite accessMode = unix.W_OK
)

func osAccess(path string, mode accessMode) error {
	return unix.Access(path, uint32(mode))
}
