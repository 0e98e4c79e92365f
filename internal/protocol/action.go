package protocol

import (
	"fmt"
	"strconv"
)

type Direction uint8

const (
	NoDirection Direction = iota
	North
	South
	East
	West
	NorthEast
	NorthWest
	SouthEast
	SouthWest
)

// Directions lists the 8 neighbor directions in a stable order.
var Directions = [...]Direction{North, South, East, West, NorthEast, NorthWest, SouthEast, SouthWest}

var directionNames = map[Direction]string{
	North:     "north",
	South:     "south",
	East:      "east",
	West:      "west",
	NorthEast: "north_east",
	NorthWest: "north_west",
	SouthEast: "south_east",
	SouthWest: "south_west",
}

var directionByName = func() map[string]Direction {
	m := make(map[string]Direction, len(directionNames))
	for d, n := range directionNames {
		m[n] = d
	}
	return m
}()

func (d Direction) String() string {
	if n, ok := directionNames[d]; ok {
		return n
	}
	return "none"
}

// Offset returns the grid delta for d. North is towards y=0.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	case West:
		return -1, 0
	case NorthEast:
		return 1, -1
	case NorthWest:
		return -1, -1
	case SouthEast:
		return 1, 1
	case SouthWest:
		return -1, 1
	}
	return 0, 0
}

func ParseDirection(s string) (Direction, bool) {
	d, ok := directionByName[s]
	return d, ok
}

// ActionKind is the closed set of per-tick agent decisions. The zero value is Rest.
type ActionKind uint8

const (
	ActRest ActionKind = iota
	ActAttack
	ActReplicate
	ActMove
	ActDie
)

// ActionKinds lists every kind, used for stable stats output.
var ActionKinds = [...]ActionKind{ActRest, ActAttack, ActReplicate, ActMove, ActDie}

func (k ActionKind) String() string {
	switch k {
	case ActRest:
		return "rest"
	case ActAttack:
		return "attack"
	case ActReplicate:
		return "replicate"
	case ActMove:
		return "move"
	case ActDie:
		return "die"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func parseActionKind(s string) (ActionKind, bool) {
	switch s {
	case "rest":
		return ActRest, true
	case "attack":
		return ActAttack, true
	case "replicate":
		return ActReplicate, true
	case "move":
		return ActMove, true
	case "die":
		return ActDie, true
	}
	return ActRest, false
}

// NeedsTarget reports whether the kind carries a direction.
func (k ActionKind) NeedsTarget() bool { return k == ActAttack || k == ActMove }

// Action is one agent's decision for one tick. Dir is set only for Attack and Move.
type Action struct {
	Kind ActionKind
	Dir  Direction
}

// Rest is the default action substituted for every failure path.
var Rest = Action{Kind: ActRest}

func Attack(d Direction) Action { return Action{Kind: ActAttack, Dir: d} }
func Move(d Direction) Action   { return Action{Kind: ActMove, Dir: d} }

func (a Action) String() string {
	if a.Kind.NeedsTarget() {
		return fmt.Sprintf("%s:%s", a.Kind, a.Dir)
	}
	return a.Kind.String()
}

// Decision is one agent's action for a tick together with why it was substituted, if it was.
type Decision struct {
	Action  Action
	Failure Failure
}
