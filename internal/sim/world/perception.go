package world

import (
	"strconv"

	"evogrid/internal/protocol"
)

// perceive builds one request per live organism from the current grid. Requests are
// independent values; decision workers never see the grid itself.
func (w *World) perceive(tick uint64) map[string]protocol.Request {
	out := make(map[string]protocol.Request, len(w.orgs))
	for id, o := range w.orgs {
		out[id] = protocol.Request{
			Tick:       tick,
			AgentID:    id,
			Position:   [2]int{o.Pos.X, o.Pos.Y},
			Energy:     o.Energy,
			WorldSize:  [2]int{w.grid.W, w.grid.H},
			Neighbors:  w.neighbors(o.Pos),
			Vision:     w.vision(o.Pos),
			Generation: o.Generation,
		}
	}
	return out
}

// neighbors lists the live agents in the 8 adjacent cells, keyed by direction name.
func (w *World) neighbors(p Pos) map[string]protocol.Neighbor {
	out := map[string]protocol.Neighbor{}
	for _, d := range protocol.Directions {
		c := w.grid.At(p.Add(d))
		if c.Kind != Live {
			continue
		}
		if o, ok := w.orgs[c.ID]; ok {
			out[d.String()] = protocol.Neighbor{AgentID: o.ID, Energy: o.Energy}
		}
	}
	return out
}

// vision is the sparse (2r+1)^2 window around p without the center. Empty cells are omitted;
// cells beyond the grid edge are reported as boundary.
func (w *World) vision(p Pos) map[string]protocol.VisionCell {
	r := protocol.VisionRadius
	out := map[string]protocol.VisionCell{}
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			q := Pos{X: p.X + dx, Y: p.Y + dy}
			var vc protocol.VisionCell
			switch {
			case !w.grid.In(q):
				vc = protocol.BoundaryCell()
			default:
				c := w.grid.At(q)
				switch c.Kind {
				case Live:
					o, ok := w.orgs[c.ID]
					if !ok {
						continue
					}
					vc = protocol.LivingCell(o.Energy)
				case Dead:
					vc = protocol.DeadCell()
				default:
					continue
				}
			}
			out[visionKey(dx, dy)] = vc
		}
	}
	return out
}

func visionKey(dx, dy int) string {
	return strconv.Itoa(dx) + "," + strconv.Itoa(dy)
}
