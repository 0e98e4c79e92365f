package archive

import (
	"os"
	"path/filepath"
	"testing"

	"evogrid/internal/persistence/snapshot"
)

func TestArchiveEpochSnapshot_CopiesExtinctionSnapshot(t *testing.T) {
	dataDir := t.TempDir()

	src := filepath.Join(dataDir, "snapshots", "41.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, WorldID: "w1", Tick: 41, Epoch: 2},
		Seed:   42,
		Digest: "feed",
		Totals: snapshot.TotalsV1{Births: 7, Deaths: 27, Extinctions: 2},
	}

	archivedPath, err := ArchiveEpochSnapshot(dataDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if filepath.Dir(archivedPath) != EpochDir(dataDir, 2) {
		t.Fatalf("archived into %s", archivedPath)
	}
	if filepath.Base(filepath.Dir(archivedPath)) != "epoch_002" {
		t.Fatalf("archive dir=%s", filepath.Dir(archivedPath))
	}

	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	meta, err := ReadEpochMeta(filepath.Dir(archivedPath))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Epoch != 2 || meta.EndTick != 41 || meta.Seed != 42 || meta.Deaths != 27 || meta.FinalDigest != "feed" {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveEpochSnapshot_MissingSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	_, err := ArchiveEpochSnapshot(dataDir, filepath.Join(dataDir, "nope.snap.zst"), snapshot.SnapshotV1{})
	if err == nil {
		t.Fatalf("expected error for a missing snapshot")
	}
	if _, err := os.Stat(filepath.Join(EpochDir(dataDir, 0), "meta.json")); err == nil {
		t.Fatalf("meta.json written without a snapshot")
	}
}
