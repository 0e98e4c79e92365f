package agentproc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evogrid/internal/protocol"
)

var ErrPopulationCap = protocol.ErrPopulationCap

type Config struct {
	MaxAgents int
	// CollectActions runs sequentially up to this many agents.
	ParallelThreshold int
	MaxParallelism    int

	ActTimeout     time.Duration
	GlobalDeadline time.Duration
	Grace          time.Duration
	TermWait       time.Duration

	Interpreter      string
	WorkspaceDir     string
	CleanupQueueSize int
}

// Manager owns the live handles. SpawnAgent, CollectActions, RemoveAgent and
// ProcessCleanupQueue are called from the orchestrating goroutine only.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	agents  map[string]*Handle
	pending []*Handle
	stopped bool

	cleanup    chan *Handle
	workerDone chan struct{}
	closeOnce  sync.Once
}

func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = 1
	}
	if cfg.GlobalDeadline < cfg.ActTimeout {
		cfg.GlobalDeadline = cfg.ActTimeout + 100*time.Millisecond
	}
	if cfg.CleanupQueueSize <= 0 {
		cfg.CleanupQueueSize = 64
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Join(os.TempDir(), "agents")
	}
	m := &Manager{
		cfg:        cfg,
		logger:     logger.Named("manager"),
		agents:     map[string]*Handle{},
		cleanup:    make(chan *Handle, cfg.CleanupQueueSize),
		workerDone: make(chan struct{}),
	}
	go m.cleanupWorker()
	return m
}

// SpawnAgent starts genome under a fresh id. It refuses with ErrPopulationCap when the live
// population is at the cap; callers treat any error as "no agent created".
func (m *Manager) SpawnAgent(genome string, generation int, memory json.RawMessage) (*Handle, error) {
	if m.Count() >= m.cfg.MaxAgents {
		return nil, ErrPopulationCap
	}
	id := uuid.NewString()
	h, err := Spawn(SpawnSpec{
		ID:          id,
		Genome:      genome,
		Generation:  generation,
		Memory:      memory,
		Workspace:   filepath.Join(m.cfg.WorkspaceDir, id),
		Interpreter: m.cfg.Interpreter,
		ActTimeout:  m.cfg.ActTimeout,
		Grace:       m.cfg.Grace,
		TermWait:    m.cfg.TermWait,
	}, m.logger)
	if err != nil {
		m.logger.Warn("spawn failed", zap.String("genome", genome), zap.Error(err))
		_ = os.RemoveAll(filepath.Join(m.cfg.WorkspaceDir, id))
		return nil, err
	}
	m.mu.Lock()
	m.agents[id] = h
	m.mu.Unlock()
	m.logger.Debug("spawned", zap.String("agent", id), zap.Int("pid", h.Pid()), zap.Int("generation", generation))
	return h, nil
}

// Spawn is SpawnAgent for callers that track agents by id only.
func (m *Manager) Spawn(genome string, generation int, memory json.RawMessage) (string, error) {
	h, err := m.SpawnAgent(genome, generation, memory)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.agents[id]
	return h, ok
}

// IDs returns the live agent ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsAlive reports whether id is live and its process still exists.
func (m *Manager) IsAlive(id string) bool {
	h, ok := m.Get(id)
	return ok && !h.IsDead() && h.IsProcessAlive()
}

type job struct {
	id  string
	h   *Handle
	req protocol.Request
}

// CollectActions runs one exchange per requested agent and returns a decision for every id in
// states. Unknown ids get Rest/E_DEAD; agents that have not answered by the global deadline get
// Rest/E_TIMEOUT. The returned map is never written after return.
func (m *Manager) CollectActions(ctx context.Context, states map[string]protocol.Request) map[string]protocol.Decision {
	results := make(map[string]protocol.Decision, len(states))
	jobs := make([]job, 0, len(states))
	m.mu.RLock()
	for id, req := range states {
		h, ok := m.agents[id]
		if !ok {
			results[id] = protocol.Decision{Action: protocol.Rest, Failure: protocol.FailDead}
			continue
		}
		results[id] = protocol.Decision{Action: protocol.Rest, Failure: protocol.FailTimeout}
		jobs = append(jobs, job{id: id, h: h, req: req})
	}
	m.mu.RUnlock()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].id < jobs[j].id })

	if len(jobs) <= m.cfg.ParallelThreshold {
		for _, j := range jobs {
			act, f := j.h.Act(j.req)
			results[j.id] = protocol.Decision{Action: act, Failure: f}
		}
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.GlobalDeadline)
	defer cancel()

	var (
		rmu    sync.Mutex
		closed bool
	)
	workers := len(jobs)
	if workers > m.cfg.MaxParallelism {
		workers = m.cfg.MaxParallelism
	}
	eg := new(errgroup.Group)
	eg.SetLimit(workers)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for _, j := range jobs {
			j := j
			eg.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				act, f := j.h.Act(j.req)
				rmu.Lock()
				if !closed {
					results[j.id] = protocol.Decision{Action: act, Failure: f}
				}
				rmu.Unlock()
				return nil
			})
		}
		_ = eg.Wait()
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		m.logger.Warn("decision deadline exceeded", zap.Int("agents", len(jobs)))
	}
	rmu.Lock()
	closed = true
	rmu.Unlock()
	return results
}

// RemoveAgent drops id from the live map and queues its process for cleanup. Once the cleanup
// worker has stopped the process is killed and its workspace removed right away.
func (m *Manager) RemoveAgent(id string) {
	m.mu.Lock()
	h, ok := m.agents[id]
	stopped := m.stopped
	if ok {
		delete(m.agents, id)
		if !stopped {
			m.pending = append(m.pending, h)
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if stopped {
		h.ForceTerminate()
		if err := os.RemoveAll(h.Workspace); err != nil {
			m.logger.Warn("workspace cleanup", zap.String("agent", h.ID), zap.Error(err))
		}
		return
	}
	h.RequestGracefulDeath()
}

// ProcessCleanupQueue hands pending removals to the cleanup worker without blocking.
// Whatever does not fit stays pending for the next call.
func (m *Manager) ProcessCleanupQueue() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	if m.stopped {
		return 0
	}
	for len(m.pending) > 0 {
		select {
		case m.cleanup <- m.pending[0]:
			m.pending[0] = nil
			m.pending = m.pending[1:]
			n++
		default:
			return n
		}
	}
	return n
}

// Pending is the number of removed handles not yet handed to the cleanup worker.
func (m *Manager) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

func (m *Manager) cleanupWorker() {
	defer close(m.workerDone)
	for h := range m.cleanup {
		m.reap(h)
	}
}

func (m *Manager) reap(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Grace+2*m.cfg.TermWait+time.Second)
	defer cancel()
	h.Shutdown(ctx)
	if err := os.RemoveAll(h.Workspace); err != nil {
		m.logger.Warn("workspace cleanup", zap.String("agent", h.ID), zap.Error(err))
	}
	m.logger.Debug("reaped", zap.String("agent", h.ID), zap.NamedError("exit", h.proc.ExitErr()))
}

// KillAll force-terminates every live agent, drains the cleanup queue and stops the worker,
// waiting at most timeout. The Manager is unusable afterwards.
func (m *Manager) KillAll(timeout time.Duration) error {
	m.mu.Lock()
	stopped := m.stopped
	var orphans []*Handle
	for id, h := range m.agents {
		h.ForceTerminate()
		if stopped {
			orphans = append(orphans, h)
		} else {
			m.pending = append(m.pending, h)
		}
		delete(m.agents, id)
	}
	m.mu.Unlock()
	for _, h := range orphans {
		_ = os.RemoveAll(h.Workspace)
	}
	return m.Flush(timeout)
}

// Flush hands every pending removal to the worker, closes the queue and waits for the worker
// to finish, bounded by timeout.
func (m *Manager) Flush(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		pending := m.pending
		m.pending = nil
		m.stopped = true
		m.mu.Unlock()
	feed:
		for i, h := range pending {
			select {
			case m.cleanup <- h:
			case <-deadline.C:
				for _, rest := range pending[i:] {
					rest.ForceTerminate()
				}
				err = fmt.Errorf("flush: %d agents not cleaned up", len(pending)-i)
				break feed
			}
		}
		close(m.cleanup)
	})
	if err != nil {
		return err
	}
	select {
	case <-m.workerDone:
		return nil
	case <-deadline.C:
		return fmt.Errorf("flush: cleanup worker still running after %s", timeout)
	}
}
