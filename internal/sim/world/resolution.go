package world

import (
	"errors"

	"go.uber.org/zap"

	"evogrid/internal/protocol"
)

type actionOutcome uint8

const (
	outcomeRest actionOutcome = iota
	outcomeAttack
	outcomeMove
	outcomeReplicated
	outcomeReplicateFailed
	outcomeDie
)

// resolve applies decisions in raster order over cur, writing into next. Targets are looked
// up in cur; occupancy for moves and births is checked in next.
func (w *World) resolve(cur, next *Grid, decisions map[string]protocol.Decision, st *TickStats) {
	cur.Each(func(p Pos, c Cell) {
		if c.Kind != Live {
			return
		}
		o, ok := w.orgs[c.ID]
		if !ok {
			// Killed earlier in this scan.
			return
		}
		d, ok := decisions[o.ID]
		if !ok {
			d = protocol.Decision{Action: protocol.Rest, Failure: protocol.FailTimeout}
		}
		st.Actions[d.Action.Kind.String()]++
		if d.Failure != protocol.FailNone {
			st.Failures[string(d.Failure)]++
		}

		out := w.apply(o, d.Action, cur, next, st)
		if out == outcomeDie {
			return
		}
		o.Energy -= w.cfg.cost(out)
	})
}

func (w *World) apply(o *Organism, act protocol.Action, cur, next *Grid, st *TickStats) actionOutcome {
	e := w.cfg.Energy
	switch act.Kind {
	case protocol.ActAttack:
		w.attack(o, act.Dir, cur, next, st)
		return outcomeAttack

	case protocol.ActMove:
		dst := o.Pos.Add(act.Dir)
		if act.Dir == protocol.NoDirection || !next.In(dst) {
			return outcomeMove
		}
		switch c := next.At(dst); c.Kind {
		case Empty:
			w.relocate(o, dst, next)
		case Dead:
			w.relocate(o, dst, next)
			o.Energy += e.DeadAgentBonus
			st.MarkersEat++
		}
		return outcomeMove

	case protocol.ActReplicate:
		if w.replicate(o, next, st) {
			return outcomeReplicated
		}
		return outcomeReplicateFailed

	case protocol.ActDie:
		w.kill(o, DeathChosen, "", next, st)
		return outcomeDie
	}

	o.Energy += e.RestGain
	return outcomeRest
}

// attack damages the live agent that occupied the target cell at the start of the tick,
// wherever it is now. Empty, marker and out-of-bounds targets have no effect.
func (w *World) attack(o *Organism, dir protocol.Direction, cur, next *Grid, st *TickStats) {
	if dir == protocol.NoDirection {
		return
	}
	tc := cur.At(o.Pos.Add(dir))
	if tc.Kind != Live || tc.ID == o.ID {
		return
	}
	target, ok := w.orgs[tc.ID]
	if !ok {
		return
	}
	e := w.cfg.Energy
	target.Energy -= e.AttackDamage
	o.Energy += e.AttackGain
	if target.Energy <= 0 {
		target.Energy = 0
		w.kill(target, DeathKilled, o.ID, next, st)
	}
}

func (w *World) relocate(o *Organism, dst Pos, next *Grid) {
	next.Clear(o.Pos)
	o.Pos = dst
	next.Set(dst, Cell{Kind: Live, ID: o.ID})
}

func (w *World) replicate(o *Organism, next *Grid, st *TickStats) bool {
	e := w.cfg.Energy
	if o.Energy < e.BaseCost+e.ReplicateCost {
		return false
	}
	var free []Pos
	for _, d := range protocol.Directions {
		q := o.Pos.Add(d)
		if next.In(q) && next.At(q).Kind == Empty {
			free = append(free, q)
		}
	}
	if len(free) == 0 {
		return false
	}
	dst := free[w.rng.Intn(len(free))]

	genome, mutated := o.Genome, false
	if w.breeder != nil {
		g, m, err := w.breeder.Offspring(o.Genome)
		if err != nil {
			w.logger.Warn("offspring genome", zap.String("agent", o.ID), zap.Error(err))
			return false
		}
		genome, mutated = g, m
	}
	child, err := w.spawnLocked(next, genome, dst, w.randomEnergy(), o.Generation+1)
	if errors.Is(err, protocol.ErrPopulationCap) {
		st.CapRefused++
		return false
	}
	if err != nil {
		st.SpawnFailed++
		w.logger.Debug("offspring not spawned", zap.String("parent", o.ID), zap.Error(err))
		return false
	}
	child.BornTick = st.Tick
	st.Births = append(st.Births, Birth{
		ID:          child.ID,
		ParentID:    o.ID,
		Pos:         [2]int{dst.X, dst.Y},
		Generation:  child.Generation,
		Fingerprint: genome.Fingerprint,
		Mutated:     mutated,
	})
	return true
}

// kill turns o into a marker at its current position in grid and hands its process to the
// population for cleanup.
func (w *World) kill(o *Organism, cause DeathCause, killer string, grid *Grid, st *TickStats) {
	grid.Set(o.Pos, Cell{Kind: Dead, ID: o.ID})
	delete(w.orgs, o.ID)
	w.pop.RemoveAgent(o.ID)
	st.Deaths[cause.String()]++
	st.Died = append(st.Died, Death{
		ID:          o.ID,
		Pos:         [2]int{o.Pos.X, o.Pos.Y},
		Cause:       cause,
		Age:         o.Age,
		Generation:  o.Generation,
		Fingerprint: o.Genome.Fingerprint,
		KillerID:    killer,
	})
}
