//go:build !unix

package procgroup

import (
	"os/exec"
	"syscall"
)

func Set(cmd *exec.Cmd) {}

func Join(cmd *exec.Cmd, pgid int) {}

func Kill(pgid int, sig syscall.Signal) error {
	return ErrUnsupported
}
