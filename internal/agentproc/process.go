package agentproc

import (
	"os/exec"
	"sync"
)

type Signal int

const (
	SigTerm Signal = iota + 1
	SigKill
)

func (s Signal) String() string {
	switch s {
	case SigTerm:
		return "SIGTERM"
	case SigKill:
		return "SIGKILL"
	}
	return "signal?"
}

// Process is the OS capability behind a Handle: existence probe, signalling, exit notification.
type Process interface {
	Pid() int
	// Alive probes the OS without reaping the child.
	Alive() bool
	Signal(sig Signal) error
	Exited() <-chan struct{}
	// ExitErr is the Wait result; nil until Exited is closed.
	ExitErr() error
}

type osProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}

	mu      sync.Mutex
	waitErr error
}

// startProcess starts cmd and reaps it in the background.
func startProcess(cmd *exec.Cmd) (*osProcess, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &osProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

func (p *osProcess) Pid() int { return p.cmd.Process.Pid }

func (p *osProcess) Exited() <-chan struct{} { return p.exited }

func (p *osProcess) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
	}
	return processExists(p.Pid())
}

func (p *osProcess) Signal(sig Signal) error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	return signalProcess(p.cmd.Process, sig)
}

// ExitErr is the result of Wait once the process has exited.
func (p *osProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}
