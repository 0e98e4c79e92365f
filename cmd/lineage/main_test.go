package main

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"evogrid/internal/genetics/pool"
)

func TestTrace_PrintsAncestryNewestFirst(t *testing.T) {
	p, err := pool.Open(filepath.Join(t.TempDir(), "pool"), ".py", rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	root, err := p.Add("x = 1\n", "")
	if err != nil {
		t.Fatal(err)
	}
	child, err := p.Add("x = 2\n", root)
	if err != nil {
		t.Fatal(err)
	}
	grandchild, err := p.Add("x = 3\n", child)
	if err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	if err := trace(&out, p, nil, grandchild); err != nil {
		t.Fatalf("trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%q", lines)
	}
	for i, want := range []string{grandchild + " gen=3", "  " + child + " gen=2", "    " + root + " gen=1"} {
		if !strings.HasPrefix(lines[i], want) {
			t.Fatalf("line %d=%q want prefix %q", i, lines[i], want)
		}
	}
}

func TestTrace_UnknownFingerprint(t *testing.T) {
	p, err := pool.Open(filepath.Join(t.TempDir(), "pool"), ".py", nil, nil)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	var out strings.Builder
	if err := trace(&out, p, nil, "ffffffffffffffff"); err == nil {
		t.Fatalf("expected error for unknown fingerprint")
	}
}
