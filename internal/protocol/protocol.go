package protocol

import "encoding/json"

// Vision cell types.
const (
	CellLivingAgent = "living_agent"
	CellDeadAgent   = "dead_agent"
	CellBoundary    = "boundary"
)

// VisionRadius is the Chebyshev radius of the sparse vision map (11x11 window).
const VisionRadius = 5

// Request is the per-tick world state sent to one agent process as a single JSON line.
type Request struct {
	Tick       uint64                `json:"tick"`
	AgentID    string                `json:"agent_id"`
	Position   [2]int                `json:"position"`
	Energy     float64               `json:"energy"`
	WorldSize  [2]int                `json:"world_size"`
	Neighbors  map[string]Neighbor   `json:"neighbors"`
	Vision     map[string]VisionCell `json:"vision"`
	Generation int                   `json:"generation"`
	TimeoutMS  int                   `json:"timeout_ms"`
	Memory     json.RawMessage       `json:"memory"`
}

// Neighbor describes a live agent in one of the 8 adjacent cells, keyed by direction name.
type Neighbor struct {
	AgentID string  `json:"agent_id"`
	Energy  float64 `json:"energy"`
}

// VisionCell is one non-empty cell of the vision map, keyed by "dx,dy".
type VisionCell struct {
	Type   string   `json:"type"`
	Energy *float64 `json:"energy,omitempty"`
}

func LivingCell(energy float64) VisionCell {
	e := energy
	return VisionCell{Type: CellLivingAgent, Energy: &e}
}

func DeadCell() VisionCell     { return VisionCell{Type: CellDeadAgent} }
func BoundaryCell() VisionCell { return VisionCell{Type: CellBoundary} }

// Response is what an agent process writes back, one JSON line per request.
type Response struct {
	Action string          `json:"action"`
	Target string          `json:"target,omitempty"`
	Memory json.RawMessage `json:"memory,omitempty"`
}

// Control is a one-shot out-of-band message (currently only "terminate").
type Control struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

const ControlTerminate = "terminate"

// EmptyMemory is the memory given to freshly spawned agents.
var EmptyMemory = json.RawMessage(`{}`)
