package snapshot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := SnapshotV1{
		Header: Header{Version: Version, WorldID: "grid", Tick: 42, Epoch: 2},
		Seed:   7,
		Width:  10,
		Height: 8,
		Organisms: []OrganismV1{
			{ID: "a", Pos: [2]int{1, 2}, Energy: 12.5, Generation: 3, Age: 9, BornTick: 33, GenomePath: "/p/x.py", Fingerprint: "0123456789abcdef"},
		},
		Markers: []MarkerV1{{ID: "b", Pos: [2]int{4, 4}}},
		Digest:  "d",
		Totals:  TotalsV1{Births: 5, Deaths: 4, Extinctions: 1},
	}
	path := PathFor(dir, snap.Header.Tick)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != snap.Header {
		t.Fatalf("header=%+v want %+v", h, snap.Header)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSnapshot_RejectsOtherVersion(t *testing.T) {
	path := PathFor(t.TempDir(), 1)
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
