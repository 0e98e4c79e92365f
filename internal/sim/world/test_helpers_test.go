package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"evogrid/internal/genetics"
	"evogrid/internal/protocol"
	"evogrid/internal/sim/tuning"
)

var errFakeSpawn = errors.New("fake spawn failure")

// fakePopulation answers from a script instead of processes.
type fakePopulation struct {
	cap      int
	nextID   int
	spawnErr error
	live     map[string]bool
	crashed  map[string]bool
	removed  []string
	decide   func(id string, req protocol.Request) protocol.Decision
	seen     map[string]protocol.Request
}

func newFakePopulation() *fakePopulation {
	return &fakePopulation{live: map[string]bool{}, crashed: map[string]bool{}}
}

func (f *fakePopulation) Spawn(genome string, generation int, memory json.RawMessage) (string, error) {
	if f.cap > 0 && len(f.live) >= f.cap {
		return "", fmt.Errorf("fake: %w", protocol.ErrPopulationCap)
	}
	if f.spawnErr != nil {
		return "", f.spawnErr
	}
	f.nextID++
	id := fmt.Sprintf("a%03d", f.nextID)
	f.live[id] = true
	return id, nil
}

func (f *fakePopulation) CollectActions(_ context.Context, states map[string]protocol.Request) map[string]protocol.Decision {
	f.seen = states
	out := make(map[string]protocol.Decision, len(states))
	for id, req := range states {
		if !f.live[id] {
			out[id] = protocol.Decision{Action: protocol.Rest, Failure: protocol.FailDead}
			continue
		}
		if f.decide == nil {
			out[id] = protocol.Decision{Action: protocol.Rest}
			continue
		}
		out[id] = f.decide(id, req)
	}
	return out
}

func (f *fakePopulation) RemoveAgent(id string) {
	if f.live[id] {
		delete(f.live, id)
		f.removed = append(f.removed, id)
	}
}

func (f *fakePopulation) IsAlive(id string) bool { return f.live[id] && !f.crashed[id] }
func (f *fakePopulation) ProcessCleanupQueue() int { return 0 }
func (f *fakePopulation) Count() int               { return len(f.live) }

// always returns the same action for every agent.
func always(a protocol.Action) func(string, protocol.Request) protocol.Decision {
	return func(string, protocol.Request) protocol.Decision { return protocol.Decision{Action: a} }
}

// byID scripts individual agents; everyone else rests.
func byID(m map[string]protocol.Action) func(string, protocol.Request) protocol.Decision {
	return func(id string, _ protocol.Request) protocol.Decision {
		if a, ok := m[id]; ok {
			return protocol.Decision{Action: a}
		}
		return protocol.Decision{Action: protocol.Rest}
	}
}

type fakeBreeder struct {
	child   genetics.Genome
	mutated bool
	err     error
	calls   int
}

func (b *fakeBreeder) Offspring(parent genetics.Genome) (genetics.Genome, bool, error) {
	b.calls++
	if b.err != nil {
		return parent, false, b.err
	}
	if b.child.Path == "" {
		return parent, false, nil
	}
	return b.child, b.mutated, nil
}

var seedGenome = genetics.Genome{Path: "/pool/seed.py", Fingerprint: "00000000000000aa"}

func testConfig(w, h int) Config {
	t := tuning.Defaults()
	t.World.Width, t.World.Height, t.World.Seed = w, h, 1
	return ConfigFromTuning("test", t)
}

func newTestWorld(t *testing.T, cfg Config) (*World, *fakePopulation) {
	t.Helper()
	pop := newFakePopulation()
	w, err := New(cfg, pop, &fakeBreeder{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, pop
}

func place(t *testing.T, w *World, x, y int, energy float64) string {
	t.Helper()
	id, err := w.Place(seedGenome, Pos{X: x, Y: y}, energy, 1)
	if err != nil {
		t.Fatalf("place (%d,%d): %v", x, y, err)
	}
	return id
}

func step(t *testing.T, w *World) TickStats {
	t.Helper()
	st, err := w.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	return st
}

func mustOrganism(t *testing.T, w *World, id string) Organism {
	t.Helper()
	o, ok := w.Organism(id)
	if !ok {
		t.Fatalf("organism %s missing", id)
	}
	return o
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
