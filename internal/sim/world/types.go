package world

import (
	"fmt"

	"evogrid/internal/genetics"
	"evogrid/internal/protocol"
)

type Pos struct{ X, Y int }

func (p Pos) Add(d protocol.Direction) Pos {
	dx, dy := d.Offset()
	return Pos{X: p.X + dx, Y: p.Y + dy}
}

type CellKind uint8

const (
	Empty CellKind = iota
	Live
	Dead
)

func (k CellKind) String() string {
	switch k {
	case Live:
		return "live"
	case Dead:
		return "dead"
	}
	return "empty"
}

// Cell holds at most one occupant. ID is the live agent, or for a marker the agent that died there.
type Cell struct {
	Kind CellKind
	ID   string
}

// Organism is the world's record of one live agent. Only the world mutates it.
type Organism struct {
	ID         string
	Pos        Pos
	Energy     float64
	Generation int
	Age        int
	BornTick   uint64
	Genome     genetics.Genome
}

// AgeOneCycle advances age by one tick and reports whether maxAge has been reached.
func (o *Organism) AgeOneCycle(maxAge int) bool {
	o.Age++
	return maxAge > 0 && o.Age >= maxAge
}

type DeathCause uint8

const (
	DeathStarved DeathCause = iota
	DeathKilled
	DeathOldAge
	DeathChosen
	DeathProcess
)

var DeathCauses = [...]DeathCause{DeathStarved, DeathKilled, DeathOldAge, DeathChosen, DeathProcess}

func (c DeathCause) String() string {
	switch c {
	case DeathStarved:
		return "starved"
	case DeathKilled:
		return "killed"
	case DeathOldAge:
		return "old_age"
	case DeathChosen:
		return "chose_death"
	case DeathProcess:
		return "process"
	}
	return "unknown"
}

func (c DeathCause) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *DeathCause) UnmarshalText(b []byte) error {
	for _, k := range DeathCauses {
		if k.String() == string(b) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown death cause %q", b)
}

type Death struct {
	ID          string     `json:"id"`
	Pos         [2]int     `json:"pos"`
	Cause       DeathCause `json:"cause"`
	Age         int        `json:"age"`
	Generation  int        `json:"generation"`
	Fingerprint string     `json:"fingerprint"`
	// KillerID is set for DeathKilled.
	KillerID string `json:"killer_id,omitempty"`
}

type Birth struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id,omitempty"`
	Pos         [2]int `json:"pos"`
	Generation  int    `json:"generation"`
	Fingerprint string `json:"fingerprint"`
	Mutated     bool   `json:"mutated,omitempty"`
}

// TickStats summarizes one tick. Maps are keyed by action, failure and cause names.
type TickStats struct {
	Tick        uint64         `json:"tick"`
	Epoch       int            `json:"epoch"`
	Population  int            `json:"population"`
	Markers     int            `json:"markers"`
	Actions     map[string]int `json:"actions"`
	Failures    map[string]int `json:"failures,omitempty"`
	Deaths      map[string]int `json:"deaths,omitempty"`
	Births      []Birth        `json:"births,omitempty"`
	Died        []Death        `json:"died,omitempty"`
	MarkersEat  int            `json:"markers_eaten,omitempty"`
	MeanEnergy  float64        `json:"mean_energy"`
	MaxGen      int            `json:"max_generation"`
	Extinct     bool           `json:"extinct,omitempty"`
	DecisionMS  int64          `json:"decision_ms"`
	Digest      string         `json:"digest"`
	SpawnFailed int            `json:"spawn_failed,omitempty"`
	CapRefused  int            `json:"cap_refused,omitempty"`
}

func newTickStats(tick uint64, epoch int) TickStats {
	return TickStats{
		Tick:     tick,
		Epoch:    epoch,
		Actions:  map[string]int{},
		Failures: map[string]int{},
		Deaths:   map[string]int{},
	}
}

// TickLogEntry is one line of the compressed tick history.
type TickLogEntry struct {
	TickStats
	Time string `json:"time"`
}
