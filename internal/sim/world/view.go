package world

// View is a deep copy of the world after a tick, for display consumers.
type View struct {
	Tick      uint64
	Epoch     int
	Width     int
	Height    int
	Cells     []Cell // row-major
	Organisms []Organism
	Stats     TickStats
	Digest    string
	Totals    Totals
}

func (v View) At(p Pos) Cell {
	if p.X < 0 || p.Y < 0 || p.X >= v.Width || p.Y >= v.Height {
		return Cell{}
	}
	return v.Cells[p.Y*v.Width+p.X]
}

func (w *World) View() View {
	w.mu.RLock()
	defer w.mu.RUnlock()

	v := View{
		Tick:   w.tick,
		Epoch:  w.epoch,
		Width:  w.grid.W,
		Height: w.grid.H,
		Cells:  make([]Cell, len(w.grid.cells)),
		Stats:  w.last,
		Digest: w.digest,
		Totals: w.totals,
	}
	copy(v.Cells, w.grid.cells)
	for _, o := range w.sortedOrganisms() {
		v.Organisms = append(v.Organisms, *o)
	}
	v.Stats.Actions = copyCounts(w.last.Actions)
	v.Stats.Failures = copyCounts(w.last.Failures)
	v.Stats.Deaths = copyCounts(w.last.Deaths)
	v.Stats.Births = append([]Birth(nil), w.last.Births...)
	v.Stats.Died = append([]Death(nil), w.last.Died...)
	return v
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
