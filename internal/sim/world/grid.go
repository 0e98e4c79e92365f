package world

// Grid is a row-major width*height array of cells.
type Grid struct {
	W, H  int
	cells []Cell
}

func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, cells: make([]Cell, w*h)}
}

func (g *Grid) In(p Pos) bool { return p.X >= 0 && p.Y >= 0 && p.X < g.W && p.Y < g.H }

// At returns the cell at p; out-of-bounds positions read as Empty.
func (g *Grid) At(p Pos) Cell {
	if !g.In(p) {
		return Cell{}
	}
	return g.cells[p.Y*g.W+p.X]
}

func (g *Grid) Set(p Pos, c Cell) {
	g.cells[p.Y*g.W+p.X] = c
}

func (g *Grid) Clear(p Pos) { g.Set(p, Cell{}) }

func (g *Grid) Clone() *Grid {
	cp := &Grid{W: g.W, H: g.H, cells: make([]Cell, len(g.cells))}
	copy(cp.cells, g.cells)
	return cp
}

func (g *Grid) Count(k CellKind) int {
	n := 0
	for _, c := range g.cells {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Each visits cells in raster order (row-major, y then x).
func (g *Grid) Each(fn func(p Pos, c Cell)) {
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			fn(Pos{X: x, Y: y}, g.cells[y*g.W+x])
		}
	}
}
