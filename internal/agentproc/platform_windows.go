//go:build windows

package agentproc

import (
	"os"
	"os/exec"
)

func setupProcAttr(cmd *exec.Cmd) {}

// processExists opens a handle to pid; Windows has no signal-0 probe.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// signalProcess kills outright for both signals: Windows cannot deliver SIGTERM.
func signalProcess(p *os.Process, sig Signal) error {
	if err := p.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
