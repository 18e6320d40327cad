//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

type singleTerminator struct {
	p *os.Process
}

func newGroupTerminator(cmd *exec.Cmd) Terminator {
	return singleTerminator{p: cmd.Process}
}

func (s singleTerminator) Interrupt() error { return s.p.Signal(os.Interrupt) }

func (s singleTerminator) Kill() error { return s.p.Kill() }
