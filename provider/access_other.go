//go:build !unix

package provider

import "os"

type accessMode uint32

const (
	accessRead  accessMode = 4
	accessWrite accessMode = 2
)

func osAccess(path string, mode accessMode) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if uint32(info.Mode().Perm())&(uint32(mode)<<6) == 0 {
		return os.ErrPermission
	}
	return nil
}
