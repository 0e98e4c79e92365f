// Package world is the grid engine: it owns the grid and every organism on it, asks the
// population for one decision per agent per tick and resolves those decisions sequentially.
package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"evogrid/internal/genetics"
	"evogrid/internal/protocol"
)

var (
	ErrDrift   = errors.New("grid and population drifted")
	ErrExtinct = errors.New("population extinct")
	ErrNoRoom  = errors.New("no empty cell")
)

// Population runs the agent processes. The world calls it only from its own goroutine.
// Spawn refusals at the population cap wrap protocol.ErrPopulationCap.
type Population interface {
	Spawn(genome string, generation int, memory json.RawMessage) (string, error)
	CollectActions(ctx context.Context, states map[string]protocol.Request) map[string]protocol.Decision
	RemoveAgent(id string)
	IsAlive(id string) bool
	ProcessCleanupQueue() int
	Count() int
}

type Breeder interface {
	Offspring(parent genetics.Genome) (genetics.Genome, bool, error)
}

type World struct {
	cfg     Config
	logger  *zap.Logger
	rng     *rand.Rand
	pop     Population
	breeder Breeder

	// mu guards the fields below against View readers; only Step and setup write them.
	mu     sync.RWMutex
	tick   uint64
	epoch  int
	grid   *Grid
	orgs   map[string]*Organism
	last   TickStats
	digest string
	totals Totals
}

// Totals are run-wide counters.
type Totals struct {
	Births      uint64
	Deaths      uint64
	Extinctions int
}

func New(cfg Config, pop Population, breeder Breeder, logger *zap.Logger) (*World, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("world size must be positive (got %dx%d)", cfg.Width, cfg.Height)
	}
	if pop == nil {
		return nil, errors.New("nil population")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &World{
		cfg:     cfg,
		logger:  logger.Named("world"),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		pop:     pop,
		breeder: breeder,
		grid:    NewGrid(cfg.Width, cfg.Height),
		orgs:    map[string]*Organism{},
	}
	w.digest = w.stateDigest()
	return w, nil
}

func (w *World) Config() Config { return w.cfg }

func (w *World) Tick() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

func (w *World) Epoch() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.epoch
}

func (w *World) PopulationSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.orgs)
}

func (w *World) Digest() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.digest
}

func (w *World) Totals() Totals {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.totals
}

// Organism returns a copy of the organism with id.
func (w *World) Organism(id string) (Organism, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	o, ok := w.orgs[id]
	if !ok {
		return Organism{}, false
	}
	return *o, true
}

// CellAt reads the current grid.
func (w *World) CellAt(p Pos) Cell {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.grid.At(p)
}

func (w *World) randomEnergy() float64 {
	lo, hi := w.cfg.Energy.InitialMin, w.cfg.Energy.InitialMax
	if hi <= lo {
		return lo
	}
	return lo + w.rng.Float64()*(hi-lo)
}

// Place spawns an agent running g at p with the given energy and generation.
func (w *World) Place(g genetics.Genome, p Pos, energy float64, generation int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.grid.In(p) {
		return "", fmt.Errorf("position %v out of bounds", p)
	}
	if c := w.grid.At(p); c.Kind != Empty {
		return "", fmt.Errorf("%w: %v holds %s", ErrNoRoom, p, c.Kind)
	}
	o, err := w.spawnLocked(w.grid, g, p, energy, generation)
	if err != nil {
		return "", err
	}
	w.digest = w.stateDigest()
	return o.ID, nil
}

// PlaceMarker puts a dead-agent marker on an empty cell.
func (w *World) PlaceMarker(p Pos, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.grid.In(p) || w.grid.At(p).Kind != Empty {
		return fmt.Errorf("cannot place marker at %v", p)
	}
	w.grid.Set(p, Cell{Kind: Dead, ID: id})
	w.digest = w.stateDigest()
	return nil
}

// Populate spawns n agents on random empty cells, each running a genome picked uniformly from
// genomes, with energy drawn from the initial range. It returns how many were spawned; spawn
// failures and the population cap only reduce the count.
func (w *World) Populate(genomes []genetics.Genome, n int) int {
	if len(genomes) == 0 || n <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var free []Pos
	w.grid.Each(func(p Pos, c Cell) {
		if c.Kind == Empty {
			free = append(free, p)
		}
	})
	w.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	spawned := 0
	for _, p := range free {
		if spawned == n {
			break
		}
		g := genomes[w.rng.Intn(len(genomes))]
		if _, err := w.spawnLocked(w.grid, g, p, w.randomEnergy(), 1); err != nil {
			w.logger.Warn("populate spawn failed", zap.String("genome", g.Path), zap.Error(err))
			continue
		}
		spawned++
	}
	w.digest = w.stateDigest()
	w.logger.Info("populated", zap.Int("spawned", spawned), zap.Int("requested", n), zap.Int("epoch", w.epoch))
	return spawned
}

// Reseed starts a new epoch: the grid is cleared (markers included) and n agents are spawned.
// Any organisms still alive are removed first.
func (w *World) Reseed(genomes []genetics.Genome, n int) int {
	w.mu.Lock()
	for id := range w.orgs {
		w.pop.RemoveAgent(id)
	}
	w.orgs = map[string]*Organism{}
	w.grid = NewGrid(w.cfg.Width, w.cfg.Height)
	w.epoch++
	w.mu.Unlock()
	return w.Populate(genomes, n)
}

func (w *World) spawnLocked(grid *Grid, g genetics.Genome, p Pos, energy float64, generation int) (*Organism, error) {
	id, err := w.pop.Spawn(g.Path, generation, protocol.EmptyMemory)
	if err != nil {
		return nil, err
	}
	o := &Organism{
		ID:         id,
		Pos:        p,
		Energy:     energy,
		Generation: generation,
		BornTick:   w.tick,
		Genome:     g,
	}
	w.orgs[id] = o
	grid.Set(p, Cell{Kind: Live, ID: id})
	return o, nil
}

// sortedOrganisms returns live organisms ordered by id.
func (w *World) sortedOrganisms() []*Organism {
	out := make([]*Organism, 0, len(w.orgs))
	for _, o := range w.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
