package main

import (
	"fmt"

	"evogrid/internal/persistence/snapshot"
	"evogrid/internal/protocol"
	"evogrid/internal/sim/world"
)

// verifier checks that a tick history is internally consistent: failure codes are known, ticks
// are contiguous (a tick at or below the previous one marks a resumed run), population changes by exactly births minus
// deaths within an epoch, and the entry at a snapshot's tick matches the snapshot.
type verifier struct {
	snap *snapshot.SnapshotV1

	prev    *world.TickLogEntry
	matched bool

	checked  uint64
	restarts int
	epochs   int
	births   int
	deaths   int
	causes   map[string]int
}

func newVerifier(snap *snapshot.SnapshotV1) *verifier {
	return &verifier{snap: snap, causes: map[string]int{}}
}

func (v *verifier) Check(e world.TickLogEntry) error {
	if len(e.Died) != sum(e.Deaths) {
		return fmt.Errorf("tick %d: %d deaths listed, %d counted by cause", e.Tick, len(e.Died), sum(e.Deaths))
	}
	for code := range e.Failures {
		if !protocol.IsKnownFailure(protocol.Failure(code)) {
			return fmt.Errorf("tick %d: unknown failure code %q", e.Tick, code)
		}
	}
	if e.Extinct != (e.Population == 0) {
		return fmt.Errorf("tick %d: extinct=%v with population %d", e.Tick, e.Extinct, e.Population)
	}

	if p := v.prev; p != nil {
		switch {
		case e.Tick <= p.Tick:
			v.restarts++
		case e.Tick != p.Tick+1:
			return fmt.Errorf("gap in history: tick %d follows %d", e.Tick, p.Tick)
		case e.Epoch != p.Epoch:
			v.epochs++
		default:
			if want := p.Population + len(e.Births) - len(e.Died); e.Population != want {
				return fmt.Errorf("tick %d: population %d, want %d (prev %d + births %d - deaths %d)",
					e.Tick, e.Population, want, p.Population, len(e.Births), len(e.Died))
			}
		}
	} else {
		v.epochs = 1
	}

	if s := v.snap; s != nil && e.Tick == s.Header.Tick && e.Epoch == s.Header.Epoch {
		if e.Digest != s.Digest {
			return fmt.Errorf("digest mismatch at tick %d: history=%s snapshot=%s", e.Tick, e.Digest, s.Digest)
		}
		if e.Population != len(s.Organisms) || e.Markers != len(s.Markers) {
			return fmt.Errorf("tick %d: history has %d organisms and %d markers, snapshot has %d and %d",
				e.Tick, e.Population, e.Markers, len(s.Organisms), len(s.Markers))
		}
		v.matched = true
	}

	v.births += len(e.Births)
	v.deaths += len(e.Died)
	for _, d := range e.Died {
		v.causes[d.Cause.String()]++
	}
	v.checked++
	v.prev = &e
	return nil
}

// Done reports a snapshot whose tick never appeared in the history.
func (v *verifier) Done() error {
	if v.snap != nil && !v.matched {
		return fmt.Errorf("snapshot tick %d (epoch %d) not found in history", v.snap.Header.Tick, v.snap.Header.Epoch)
	}
	return nil
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
