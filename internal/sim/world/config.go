package world

import "evogrid/internal/sim/tuning"

type Config struct {
	ID     string
	Width  int
	Height int
	Seed   int64
	MaxAge int

	Energy tuning.Energy
}

func ConfigFromTuning(id string, t tuning.Tuning) Config {
	return Config{
		ID:     id,
		Width:  t.World.Width,
		Height: t.World.Height,
		Seed:   t.World.Seed,
		MaxAge: t.Agents.MaxAge,
		Energy: t.Energy,
	}
}

// cost is the energy an action charges after its effect. A replicate that did not happen
// charges only the base cost.
func (c Config) cost(kind actionOutcome) float64 {
	e := c.Energy
	switch kind {
	case outcomeAttack:
		return e.BaseCost + e.AttackCost
	case outcomeMove:
		return e.BaseCost + e.MoveCost
	case outcomeReplicated:
		return e.BaseCost + e.ReplicateCost
	case outcomeDie:
		return 0
	}
	return e.BaseCost
}
