package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"evogrid/internal/sim/world"
)

func entry(tick uint64) world.TickLogEntry {
	return world.TickLogEntry{
		TickStats: world.TickStats{
			Tick:       tick,
			Epoch:      1,
			Population: int(tick),
			Actions:    map[string]int{"rest": int(tick)},
			Died:       []world.Death{{ID: "a", Cause: world.DeathStarved, Age: 3}},
			Digest:     "d",
		},
		Time: "2026-01-01T00:00:00Z",
	}
}

func TestTickLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 1, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	var want []world.TickLogEntry
	for tick := uint64(1); tick <= 5; tick++ {
		if tick == 4 {
			clock = clock.Add(2 * time.Minute)
		}
		e := entry(tick)
		want = append(want, e)
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := TickFiles(TickDir(dir))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}

	var got []world.TickLogEntry
	if err := ReadTicks(TickDir(dir), func(e world.TickLogEntry) bool {
		got = append(got, e)
		return true
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestTickLogger_ReopenAppends(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, tick := range []uint64{1, 2} {
		l := NewTickLogger(dir)
		l.w.now = func() time.Time { return clock }
		if err := l.WriteTick(entry(tick)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	var ticks []uint64
	if err := ReadTicks(TickDir(dir), func(e world.TickLogEntry) bool {
		ticks = append(ticks, e.Tick)
		return true
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 2}, ticks); diff != "" {
		t.Fatalf("ticks (-want +got):\n%s", diff)
	}
}

func TestReadTicks_StopsEarly(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for tick := uint64(1); tick <= 3; tick++ {
		if err := l.WriteTick(entry(tick)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = l.Close()

	n := 0
	if err := ReadTicks(TickDir(dir), func(world.TickLogEntry) bool {
		n++
		return false
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 1 {
		t.Fatalf("visited %d entries, want 1", n)
	}
}

func TestTickFiles_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ticks-2026-01-01-01.jsonl.zst", "notes.txt", "audit-2026-01-01-01.jsonl.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := TickFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "ticks-2026-01-01-01.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
}
