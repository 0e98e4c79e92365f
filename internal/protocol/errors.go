package protocol

import "errors"

// ErrProtocol marks a response that is not valid JSON or does not satisfy the response schema.
var ErrProtocol = errors.New("protocol failure")

// ErrPopulationCap is returned by a population that refuses a spawn because it is full.
var ErrPopulationCap = errors.New("population cap reached")

// Failure is the reason an exchange fell back to Rest. The empty Failure means the agent answered.
type Failure string

const (
	FailNone     Failure = ""
	FailProtocol Failure = "E_PROTOCOL" // malformed JSON, unknown action, missing target
	FailTimeout  Failure = "E_TIMEOUT"  // no line before the per-agent deadline
	FailProcess  Failure = "E_PROCESS"  // broken pipe, EOF, dead child
	FailBusy     Failure = "E_BUSY"     // previous exchange still in flight
	FailDead     Failure = "E_DEAD"     // handle already marked dead
)

var knownFailures = map[Failure]struct{}{
	FailNone:     {},
	FailProtocol: {},
	FailTimeout:  {},
	FailProcess:  {},
	FailBusy:     {},
	FailDead:     {},
}

// IsKnownFailure reports whether f is one of the reason codes above.
func IsKnownFailure(f Failure) bool {
	_, ok := knownFailures[f]
	return ok
}
