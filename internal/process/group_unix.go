//go:build unix

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// groupTerminator signals the whole process group led by the child.
type groupTerminator struct {
	pgid int
}

func newGroupTerminator(cmd *exec.Cmd) Terminator {
	return groupTerminator{pgid: cmd.Process.Pid}
}

func (g groupTerminator) Interrupt() error { return g.signal(unix.SIGINT) }

func (g groupTerminator) Kill() error { return g.signal(unix.SIGKILL) }

func (g groupTerminator) signal(sig unix.Signal) error {
	err := unix.Kill(-g.pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
