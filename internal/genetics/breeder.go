// Package genetics turns a parent genome into an offspring genome: an exact copy most of the
// time, a mutated variant stored in the pool otherwise.
package genetics

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"evogrid/internal/genetics/mutation"
	"evogrid/internal/genetics/pool"
)

// Genome identifies runnable agent code.
type Genome struct {
	Path        string
	Fingerprint string
}

type Breeder struct {
	pool    *pool.Pool
	mutator *mutation.Engine
	rng     *rand.Rand
	prob    float64
	logger  *zap.Logger
}

// NewBreeder mutates with probability prob per replication. rng must not be shared with other
// goroutines; the mutator may share it.
func NewBreeder(p *pool.Pool, m *mutation.Engine, rng *rand.Rand, prob float64, logger *zap.Logger) *Breeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breeder{pool: p, mutator: m, rng: rng, prob: prob, logger: logger.Named("breeder")}
}

// Offspring returns the genome for a child of parent and whether it was mutated.
func (b *Breeder) Offspring(parent Genome) (Genome, bool, error) {
	if b.rng.Float64() >= b.prob {
		return parent, false, nil
	}
	src, err := pool.ReadSource(parent.Path)
	if err != nil {
		return parent, false, fmt.Errorf("read parent genome: %w", err)
	}
	mutated := b.mutator.Mutate(src)
	fp, err := b.pool.Add(mutated, parent.Fingerprint)
	if err != nil {
		return parent, false, err
	}
	if fp == parent.Fingerprint {
		return parent, false, nil
	}
	return Genome{Path: b.pool.Path(fp), Fingerprint: fp}, true, nil
}

// Seed stores a seed genome file in the pool and returns its pooled location.
func (b *Breeder) Seed(path string) (Genome, error) {
	fp, err := b.pool.AddFile(path)
	if err != nil {
		return Genome{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return Genome{Path: b.pool.Path(fp), Fingerprint: fp}, nil
}

// Random picks any stored genome.
func (b *Breeder) Random() (Genome, bool) {
	path, ok := b.pool.RandomGenomePath()
	if !ok {
		return Genome{}, false
	}
	e, err := pool.ReadEntry(path)
	if err != nil {
		b.logger.Warn("random genome unreadable", zap.String("path", path), zap.Error(err))
		return Genome{}, false
	}
	return Genome{Path: path, Fingerprint: e.Fingerprint}, true
}
