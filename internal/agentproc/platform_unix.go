//go:build !windows

package agentproc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setupProcAttr puts the agent in its own process group so signals reach anything it forks.
func setupProcAttr(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// processExists sends signal 0: no signal is delivered and the child is not reaped.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func signalProcess(p *os.Process, sig Signal) error {
	s := syscall.SIGTERM
	if sig == SigKill {
		s = syscall.SIGKILL
	}
	if pgid, err := syscall.Getpgid(p.Pid); err == nil && pgid == p.Pid {
		_ = syscall.Kill(-pgid, s)
	}
	if err := p.Signal(s); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
