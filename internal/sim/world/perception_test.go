package world

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"evogrid/internal/protocol"
)

func TestPerceptionNeighborsAndVision(t *testing.T) {
	w, _ := newTestWorld(t, testConfig(20, 20))
	me := place(t, w, 10, 10, 15)
	east := place(t, w, 11, 10, 7)
	place(t, w, 15, 5, 3)
	place(t, w, 16, 10, 9) // dx=6, outside the window
	if err := w.PlaceMarker(Pos{X: 9, Y: 9}, "gone"); err != nil {
		t.Fatalf("marker: %v", err)
	}

	req := w.perceive(1)[me]

	if req.AgentID != me || req.Position != [2]int{10, 10} || req.WorldSize != [2]int{20, 20} || req.Tick != 1 {
		t.Fatalf("request header=%+v", req)
	}
	wantNeighbors := map[string]protocol.Neighbor{"east": {AgentID: east, Energy: 7}}
	if diff := cmp.Diff(wantNeighbors, req.Neighbors); diff != "" {
		t.Fatalf("neighbors (-want +got):\n%s", diff)
	}
	wantVision := map[string]protocol.VisionCell{
		"1,0":   protocol.LivingCell(7),
		"5,-5":  protocol.LivingCell(3),
		"-1,-1": protocol.DeadCell(),
	}
	if diff := cmp.Diff(wantVision, req.Vision); diff != "" {
		t.Fatalf("vision (-want +got):\n%s", diff)
	}
}

func TestVisionMarksBoundary(t *testing.T) {
	w, _ := newTestWorld(t, testConfig(10, 10))
	id := place(t, w, 0, 0, 15)

	v := w.perceive(1)[id].Vision

	// 11x11 window minus the center; in-bounds part is 6x6 minus the center.
	wantBoundary := 11*11 - 6*6
	n := 0
	for key, c := range v {
		if c.Type != protocol.CellBoundary {
			t.Fatalf("unexpected %s at %s", c.Type, key)
		}
		n++
	}
	if n != wantBoundary {
		t.Fatalf("boundary cells=%d want %d", n, wantBoundary)
	}
	if _, ok := v["-1,0"]; !ok {
		t.Fatalf("missing west boundary")
	}
	if _, ok := v["1,0"]; ok {
		t.Fatalf("empty in-bounds cell should be omitted")
	}
}
