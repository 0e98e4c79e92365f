package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"evogrid/internal/protocol"
)

var ErrSpawnFailure = errors.New("spawn failure")

const (
	stderrLogName = "stderr.log"
	// Buffered response lines; anything beyond this blocks the reader until the next Act drains it.
	lineBuffer = 4
	maxLine    = 64 << 10
	// Requests waiting behind a write the agent has not read yet.
	outboundQueue = 2
)

type SpawnSpec struct {
	ID         string
	Genome     string // path of the genome file to run
	Generation int
	Memory     json.RawMessage
	// Workspace is the agent's private directory; created on spawn, removed on cleanup.
	Workspace string
	// Interpreter runs Genome as its argument; empty executes Genome directly.
	Interpreter string

	ActTimeout time.Duration
	Grace      time.Duration
	TermWait   time.Duration
}

// Handle owns one agent process and its line-delimited JSON channel.
//
// Act is called from Decision-phase workers; every other method from the orchestrator or the
// manager's cleanup worker. Position and energy live in the world, never here.
type Handle struct {
	ID         string
	Genome     string
	Generation int
	Workspace  string

	proc     Process
	stdin    *os.File
	out      chan []byte
	lines    chan []byte
	done     chan struct{}
	broken   chan struct{} // closed when a stdin write fails
	writeErr error
	timeout  time.Duration
	grace    time.Duration
	termWait time.Duration
	logger   *zap.Logger

	mu     sync.Mutex // one exchange at a time
	memory json.RawMessage

	dead        atomic.Bool
	releaseOnce sync.Once
	termOnce    sync.Once
}

// Spawn starts the genome as a child process with piped stdin/stdout and checks it is alive.
// Any error wraps ErrSpawnFailure; the caller never gets a half-started handle.
func Spawn(spec SpawnSpec, logger *zap.Logger) (*Handle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec.ActTimeout <= 0 {
		spec.ActTimeout = 500 * time.Millisecond
	}
	if err := os.MkdirAll(spec.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("%w: workspace: %v", ErrSpawnFailure, err)
	}
	genome, err := filepath.Abs(spec.Genome)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}

	var cmd *exec.Cmd
	if spec.Interpreter != "" {
		cmd = exec.Command(spec.Interpreter, genome)
	} else {
		cmd = exec.Command(genome)
	}
	cmd.Dir = spec.Workspace
	cmd.Env = append(os.Environ(),
		"AGENT_ID="+spec.ID,
		"AGENT_WORKSPACE="+spec.Workspace,
		"AGENT_GENERATION="+strconv.Itoa(spec.Generation),
	)
	setupProcAttr(cmd)

	stderrFile, err := os.OpenFile(filepath.Join(spec.Workspace, stderrLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: stderr log: %v", ErrSpawnFailure, err)
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		_ = stderrFile.Close()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailure, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stderrFile.Close()
		_ = stdinR.Close()
		_ = stdinW.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailure, err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrFile

	proc, err := startProcess(cmd)
	// The child holds its own copies of these.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = stderrFile.Close()
	if err != nil {
		_ = stdinW.Close()
		_ = stdoutR.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailure, spec.Genome, err)
	}

	memory := spec.Memory
	if len(memory) == 0 {
		memory = protocol.EmptyMemory
	}
	h := &Handle{
		ID:         spec.ID,
		Genome:     spec.Genome,
		Generation: spec.Generation,
		Workspace:  spec.Workspace,
		proc:       proc,
		stdin:      stdinW,
		out:        make(chan []byte, outboundQueue),
		lines:      make(chan []byte, lineBuffer),
		done:       make(chan struct{}),
		broken:     make(chan struct{}),
		timeout:    spec.ActTimeout,
		grace:      spec.Grace,
		termWait:   spec.TermWait,
		logger:     logger.With(zap.String("agent", spec.ID)),
		memory:     memory,
	}
	go h.readLoop(stdoutR)
	go h.writeLoop()

	if !proc.Alive() {
		h.ForceTerminate()
		return nil, fmt.Errorf("%w: %s exited immediately", ErrSpawnFailure, spec.Genome)
	}
	return h, nil
}

func (h *Handle) readLoop(r *os.File) {
	defer close(h.lines)
	defer r.Close()
	br := bufio.NewReaderSize(r, maxLine)
	for {
		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// Oversized line: skip to its end and report it as garbage.
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			if err != nil {
				return
			}
			line = []byte("!oversized\n")
		} else if err != nil {
			return
		}
		cp := append([]byte(nil), line...)
		select {
		case h.lines <- cp:
		case <-h.done:
			return
		}
	}
}

// writeLoop feeds stdin from the outbound queue. A write may block for as long as the agent
// leaves its stdin unread; release unblocks it by closing the pipe.
func (h *Handle) writeLoop() {
	for {
		select {
		case b := <-h.out:
			if _, err := h.stdin.Write(b); err != nil {
				select {
				case <-h.done:
				default:
					h.writeErr = err
					close(h.broken)
				}
				return
			}
		case <-h.done:
			return
		}
	}
}

// Act sends one request and waits up to the act timeout for one response line. It never fails:
// every failure path returns Rest plus the reason. A process failure also force-terminates.
// Memory survives every failure unchanged.
func (h *Handle) Act(req protocol.Request) (protocol.Action, protocol.Failure) {
	if h.dead.Load() {
		return protocol.Rest, protocol.FailDead
	}
	if !h.mu.TryLock() {
		return protocol.Rest, protocol.FailBusy
	}
	defer h.mu.Unlock()

	select {
	case <-h.broken:
		h.processFailure("write: " + h.writeErr.Error())
		return protocol.Rest, protocol.FailProcess
	default:
	}

	// Discard late answers to exchanges that already timed out.
	for drained := false; !drained; {
		select {
		case _, ok := <-h.lines:
			if !ok {
				h.processFailure("stdout closed")
				return protocol.Rest, protocol.FailProcess
			}
		default:
			drained = true
		}
	}

	req.AgentID = h.ID
	req.TimeoutMS = int(h.timeout / time.Millisecond)
	req.Memory = h.memory
	b, err := protocol.EncodeLine(req)
	if err != nil {
		h.logger.Warn("encode request", zap.Error(err))
		return protocol.Rest, protocol.FailProtocol
	}

	select {
	case h.out <- b:
	default:
		// The agent is not reading its stdin.
		return protocol.Rest, protocol.FailTimeout
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case line, ok := <-h.lines:
		if !ok {
			h.processFailure("stdout closed")
			return protocol.Rest, protocol.FailProcess
		}
		act, mem, err := protocol.DecodeResponse(line)
		if err != nil {
			h.logger.Debug("bad response", zap.Error(err))
			return protocol.Rest, protocol.FailProtocol
		}
		if mem != nil {
			h.memory = mem
		}
		return act, protocol.FailNone
	case <-h.broken:
		h.processFailure("write: " + h.writeErr.Error())
		return protocol.Rest, protocol.FailProcess
	case <-timer.C:
		return protocol.Rest, protocol.FailTimeout
	}
}

func (h *Handle) processFailure(reason string) {
	h.logger.Warn("agent channel broken", zap.String("reason", reason))
	h.ForceTerminate()
}

// Memory returns the last memory blob the agent sent (or its initial memory).
func (h *Handle) Memory() json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.memory
}

func (h *Handle) Pid() int { return h.proc.Pid() }

// IsProcessAlive probes the OS; it never reaps the child.
func (h *Handle) IsProcessAlive() bool { return h.proc.Alive() }

func (h *Handle) IsDead() bool { return h.dead.Load() }

// RequestGracefulDeath marks the handle dead and sends the terminate control line once.
// It does not wait; Shutdown performs the escalation.
func (h *Handle) RequestGracefulDeath() {
	h.dead.Store(true)
	h.termOnce.Do(func() {
		b, err := protocol.EncodeLine(protocol.Control{Type: protocol.ControlTerminate})
		if err != nil {
			return
		}
		// Dropped when the queue is full; Shutdown escalates to signals.
		select {
		case h.out <- b:
		default:
		}
	})
}

// Shutdown waits the grace period for a cooperative exit, then SIGTERM, then SIGKILL.
// It returns once the process has exited or ctx is done.
func (h *Handle) Shutdown(ctx context.Context) {
	h.RequestGracefulDeath()
	defer h.release()
	if h.waitExit(ctx, h.grace) {
		return
	}
	h.logger.Debug("escalating", zap.Stringer("signal", SigTerm))
	_ = h.proc.Signal(SigTerm)
	if h.waitExit(ctx, h.termWait) {
		return
	}
	h.logger.Debug("escalating", zap.Stringer("signal", SigKill))
	_ = h.proc.Signal(SigKill)
	h.waitExit(ctx, h.termWait)
}

// ForceTerminate kills the process group immediately. Reaping happens in the background.
func (h *Handle) ForceTerminate() {
	h.dead.Store(true)
	_ = h.proc.Signal(SigKill)
	h.release()
}

func (h *Handle) waitExit(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.proc.Exited():
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		close(h.done)
		_ = h.stdin.Close()
	})
}
