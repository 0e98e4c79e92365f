package world

import (
	"context"
	"errors"
	"testing"

	"evogrid/internal/genetics"
	"evogrid/internal/persistence/snapshot"
	"evogrid/internal/protocol"
)

func TestDigestDeterministic(t *testing.T) {
	run := func() []string {
		w, pop := newTestWorld(t, testConfig(15, 15))
		w.breeder = &fakeBreeder{}
		w.Populate([]genetics.Genome{seedGenome}, 10)
		pop.decide = func(id string, req protocol.Request) protocol.Decision {
			if req.Energy > 15 {
				return protocol.Decision{Action: protocol.Action{Kind: protocol.ActReplicate}}
			}
			d := protocol.Directions[(req.Position[0]+req.Position[1])%len(protocol.Directions)]
			return protocol.Decision{Action: protocol.Move(d)}
		}
		var out []string
		for i := 0; i < 20; i++ {
			st := step(t, w)
			out = append(out, st.Digest)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tick %d digest differs: %s vs %s", i+1, a[i], b[i])
		}
	}
}

func TestRunStopsOnExtinction(t *testing.T) {
	w, pop := newTestWorld(t, testConfig(5, 5))
	place(t, w, 2, 2, 10)
	pop.decide = always(protocol.Action{Kind: protocol.ActDie})

	var ticks int
	err := w.Run(context.Background(), RunOptions{OnTick: func(TickStats) { ticks++ }})
	if !errors.Is(err, ErrExtinct) {
		t.Fatalf("err=%v want ErrExtinct", err)
	}
	if ticks != 1 || w.Totals().Extinctions != 1 {
		t.Fatalf("ticks=%d extinctions=%d", ticks, w.Totals().Extinctions)
	}
}

func TestRunReseedsOnExtinction(t *testing.T) {
	w, pop := newTestWorld(t, testConfig(5, 5))
	place(t, w, 2, 2, 10)
	pop.decide = always(protocol.Action{Kind: protocol.ActDie})

	reseeds := 0
	err := w.Run(context.Background(), RunOptions{
		MaxTicks: 4,
		OnExtinction: func(TickStats) bool {
			reseeds++
			return w.Reseed([]genetics.Genome{seedGenome}, 3) > 0
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reseeds != 4 || w.Epoch() != 4 {
		t.Fatalf("reseeds=%d epoch=%d want 4, 4", reseeds, w.Epoch())
	}
	if w.PopulationSize() != 3 {
		t.Fatalf("population=%d want 3", w.PopulationSize())
	}
	// Reseeding clears the previous epoch's markers.
	for _, c := range w.View().Cells {
		if c.Kind == Dead {
			t.Fatalf("marker %s survived reseed", c.ID)
		}
	}
}

func TestRunHonorsContext(t *testing.T) {
	w, _ := newTestWorld(t, testConfig(5, 5))
	place(t, w, 2, 2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, RunOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestViewIsACopy(t *testing.T) {
	w, _ := newTestWorld(t, testConfig(5, 5))
	id := place(t, w, 1, 1, 10)
	step(t, w)

	v := w.View()
	v.Cells[0] = Cell{Kind: Dead, ID: "x"}
	v.Organisms[0].Energy = 999
	v.Stats.Actions["rest"] = 42

	if c := w.CellAt(Pos{}); c.Kind != Empty {
		t.Fatalf("view write leaked into grid")
	}
	if o := mustOrganism(t, w, id); o.Energy == 999 {
		t.Fatalf("view write leaked into organism")
	}
	if w.View().Stats.Actions["rest"] != 1 {
		t.Fatalf("view write leaked into stats")
	}
}

func TestSnapshotExportImport(t *testing.T) {
	w, _ := newTestWorld(t, testConfig(8, 8))
	place(t, w, 1, 1, 12)
	place(t, w, 6, 3, 7)
	if err := w.PlaceMarker(Pos{X: 4, Y: 4}, "m"); err != nil {
		t.Fatalf("marker: %v", err)
	}
	for i := 0; i < 3; i++ {
		step(t, w)
	}
	snap := w.ExportSnapshot()
	if snap.Header.Tick != 3 || len(snap.Organisms) != 2 || len(snap.Markers) != 1 || snap.Header.Version != snapshot.Version {
		t.Fatalf("snapshot=%+v", snap)
	}

	w2, pop2 := newTestWorld(t, testConfig(8, 8))
	n, err := w2.ImportSnapshot(snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 || pop2.Count() != 2 || w2.Tick() != 3 {
		t.Fatalf("restored=%d population=%d tick=%d", n, pop2.Count(), w2.Tick())
	}
	if c := w2.CellAt(Pos{X: 4, Y: 4}); c.Kind != Dead {
		t.Fatalf("marker not restored")
	}
	for _, so := range snap.Organisms {
		c := w2.CellAt(Pos{X: so.Pos[0], Y: so.Pos[1]})
		o := mustOrganism(t, w2, c.ID)
		if o.Energy != so.Energy || o.Age != so.Age || o.Genome.Fingerprint != so.Fingerprint {
			t.Fatalf("organism %+v does not match %+v", o, so)
		}
	}
	if _, err := w2.ImportSnapshot(snap); err == nil {
		t.Fatalf("import into populated world should fail")
	}
}
