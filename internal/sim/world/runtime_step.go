package world

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step runs one tick: perception, decision, resolution, metabolism, compaction.
//
// The decision phase runs without the state lock so View stays responsive while agents think.
// ErrDrift is returned after the tick is committed if the grid, the organism table and the
// population disagree.
func (w *World) Step(ctx context.Context) (TickStats, error) {
	w.mu.RLock()
	tick := w.tick + 1
	states := w.perceive(tick)
	epoch := w.epoch
	w.mu.RUnlock()

	start := time.Now()
	decisions := w.pop.CollectActions(ctx, states)
	decisionTime := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()

	st := newTickStats(tick, epoch)
	st.DecisionMS = decisionTime.Milliseconds()

	cur := w.grid
	next := cur.Clone()
	w.resolve(cur, next, decisions, &st)
	w.metabolize(next, &st)

	// Compaction.
	w.grid = next
	w.tick = tick
	w.pop.ProcessCleanupQueue()

	st.Population = len(w.orgs)
	st.Markers = next.Count(Dead)
	var sum float64
	for _, o := range w.orgs {
		sum += o.Energy
		if o.Generation > st.MaxGen {
			st.MaxGen = o.Generation
		}
	}
	if st.Population > 0 {
		st.MeanEnergy = sum / float64(st.Population)
	}
	w.totals.Births += uint64(len(st.Births))
	w.totals.Deaths += uint64(len(st.Died))
	if st.Population == 0 {
		st.Extinct = true
		w.totals.Extinctions++
	}
	w.digest = w.stateDigest()
	st.Digest = w.digest
	w.last = st

	if live, pop := next.Count(Live), w.pop.Count(); live != len(w.orgs) || pop != len(w.orgs) {
		w.logger.Error("drift", zap.Uint64("tick", tick), zap.Int("cells", live),
			zap.Int("organisms", len(w.orgs)), zap.Int("population", pop))
		return st, fmt.Errorf("%w at tick %d: cells=%d organisms=%d population=%d", ErrDrift, tick, live, len(w.orgs), pop)
	}
	return st, nil
}

// metabolize ages every organism that acted this tick, applies passive decay and removes the
// dead: old age, energy at or below epsilon, or a process that is gone.
func (w *World) metabolize(next *Grid, st *TickStats) {
	e := w.cfg.Energy
	for _, o := range w.sortedOrganisms() {
		if o.BornTick == st.Tick {
			continue
		}
		oldAge := o.AgeOneCycle(w.cfg.MaxAge)
		o.Energy -= e.PassiveDecay
		switch {
		case !w.pop.IsAlive(o.ID):
			w.kill(o, DeathProcess, "", next, st)
		case oldAge:
			w.kill(o, DeathOldAge, "", next, st)
		case o.Energy <= e.DeathEpsilon:
			if o.Energy < 0 {
				o.Energy = 0
			}
			w.kill(o, DeathStarved, "", next, st)
		}
	}
}
