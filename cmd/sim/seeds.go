package main

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"evogrid/internal/genetics"
)

// seedGenomes stores every seed file from dir in the pool. When dir is missing or empty the
// pool itself supplies a random stored genome, so a run can continue from an evolved pool.
func seedGenomes(b *genetics.Breeder, dir, ext string, logger *zap.Logger) ([]genetics.Genome, error) {
	files, err := listGenomeFiles(dir, ext)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var out []genetics.Genome
	for _, f := range files {
		g, err := b.Seed(f)
		if err != nil {
			logger.Warn("seed genome skipped", zap.String("file", f), zap.Error(err))
			continue
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		if g, ok := b.Random(); ok {
			logger.Info("no seed genomes; using a pooled genome", zap.String("fingerprint", g.Fingerprint))
			out = append(out, g)
		}
	}
	logger.Info("seed genomes", zap.Int("count", len(out)), zap.String("dir", dir))
	return out, nil
}
