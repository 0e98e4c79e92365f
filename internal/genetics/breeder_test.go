package genetics

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"evogrid/internal/genetics/mutation"
	"evogrid/internal/genetics/pool"
)

const src = "import random\nif energy > 5:\n    x = 30\nif random.random() < 0.4:\n    y = 2\n"

func newBreeder(t *testing.T, prob float64) (*Breeder, Genome) {
	t.Helper()
	p, err := pool.Open(t.TempDir(), ".py", rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	rng := rand.New(rand.NewSource(4))
	b := NewBreeder(p, mutation.New(mutation.Config{LineRate: 1}, rng), rng, prob, nil)

	seedPath := filepath.Join(t.TempDir(), "seed.py")
	if err := os.WriteFile(seedPath, []byte(src), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	g, err := b.Seed(seedPath)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return b, g
}

func TestOffspring_ExactCopyWhenNoMutation(t *testing.T) {
	b, parent := newBreeder(t, 0)
	for i := 0; i < 20; i++ {
		child, mutated, err := b.Offspring(parent)
		if err != nil {
			t.Fatalf("offspring: %v", err)
		}
		if mutated || child != parent {
			t.Fatalf("child=%+v mutated=%v want exact copy", child, mutated)
		}
	}
}

func TestOffspring_MutatedChildIsStoredWithLineage(t *testing.T) {
	b, parent := newBreeder(t, 1)
	child, mutated, err := b.Offspring(parent)
	if err != nil {
		t.Fatalf("offspring: %v", err)
	}
	if !mutated {
		t.Fatalf("every line is mutable at rate 1; expected a new genome")
	}
	if child.Fingerprint == parent.Fingerprint {
		t.Fatalf("mutated child kept parent fingerprint")
	}
	lin, err := b.pool.LineageOf(child.Fingerprint)
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if lin.Parent != parent.Fingerprint || lin.Generation != 2 {
		t.Fatalf("lineage=%+v want parent %s generation 2", lin, parent.Fingerprint)
	}
	if _, err := os.Stat(child.Path); err != nil {
		t.Fatalf("child genome missing: %v", err)
	}
}

func TestRandom(t *testing.T) {
	b, parent := newBreeder(t, 0)
	g, ok := b.Random()
	if !ok || g != parent {
		t.Fatalf("Random()=%+v,%v want %+v", g, ok, parent)
	}
}
