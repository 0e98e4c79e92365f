package world

import (
	"fmt"

	"evogrid/internal/genetics"
	"evogrid/internal/persistence/snapshot"
)

func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: w.tick, Epoch: w.epoch},
		Seed:   w.cfg.Seed,
		Width:  w.grid.W,
		Height: w.grid.H,
		Digest: w.digest,
		Totals: snapshot.TotalsV1{
			Births:      w.totals.Births,
			Deaths:      w.totals.Deaths,
			Extinctions: w.totals.Extinctions,
		},
	}
	for _, o := range w.sortedOrganisms() {
		snap.Organisms = append(snap.Organisms, snapshot.OrganismV1{
			ID:          o.ID,
			Pos:         [2]int{o.Pos.X, o.Pos.Y},
			Energy:      o.Energy,
			Generation:  o.Generation,
			Age:         o.Age,
			BornTick:    o.BornTick,
			GenomePath:  o.Genome.Path,
			Fingerprint: o.Genome.Fingerprint,
		})
	}
	w.grid.Each(func(p Pos, c Cell) {
		if c.Kind == Dead {
			snap.Markers = append(snap.Markers, snapshot.MarkerV1{ID: c.ID, Pos: [2]int{p.X, p.Y}})
		}
	})
	return snap
}

// ImportSnapshot restores grid, markers and counters from snap and respawns every organism
// from its genome with fresh memory. Organisms get new ids (the old processes are gone); the
// digest therefore differs from the one recorded in the snapshot.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) (restored int, err error) {
	if snap.Width != w.cfg.Width || snap.Height != w.cfg.Height {
		return 0, fmt.Errorf("snapshot is %dx%d, world is %dx%d", snap.Width, snap.Height, w.cfg.Width, w.cfg.Height)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.orgs) > 0 {
		return 0, fmt.Errorf("import into a populated world")
	}

	grid := NewGrid(snap.Width, snap.Height)
	for _, m := range snap.Markers {
		p := Pos{X: m.Pos[0], Y: m.Pos[1]}
		if grid.In(p) {
			grid.Set(p, Cell{Kind: Dead, ID: m.ID})
		}
	}
	w.grid = grid
	w.tick = snap.Header.Tick
	w.epoch = snap.Header.Epoch
	w.totals = Totals{Births: snap.Totals.Births, Deaths: snap.Totals.Deaths, Extinctions: snap.Totals.Extinctions}

	for _, so := range snap.Organisms {
		p := Pos{X: so.Pos[0], Y: so.Pos[1]}
		if !grid.In(p) || grid.At(p).Kind != Empty {
			continue
		}
		o, err := w.spawnLocked(grid, genetics.Genome{Path: so.GenomePath, Fingerprint: so.Fingerprint}, p, so.Energy, so.Generation)
		if err != nil {
			continue
		}
		o.Age = so.Age
		o.BornTick = so.BornTick
		restored++
	}
	w.digest = w.stateDigest()
	return restored, nil
}
