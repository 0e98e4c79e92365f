package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.Agents.ActTimeout() != 500*time.Millisecond {
		t.Fatalf("act timeout=%v want 500ms", d.Agents.ActTimeout())
	}
	if d.Agents.GlobalDeadline() <= d.Agents.ActTimeout() {
		t.Fatalf("global deadline %v must exceed per-agent timeout", d.Agents.GlobalDeadline())
	}
}

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	want := Defaults()
	if got.World != want.World || got.Energy != want.Energy || got.Agents != want.Agents {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got=%+v\nwant=%+v", got, want)
	}
	if len(got.Genetics.TraitKeys) != len(want.Genetics.TraitKeys) {
		t.Fatalf("trait keys=%v want %v", got.Genetics.TraitKeys, want.Genetics.TraitKeys)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "world:\n  width: 10\n  height: 10\nenergy:\n  dead_agent_bonus: 4\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.World.Width != 10 || got.World.Height != 10 {
		t.Fatalf("size=%dx%d want 10x10", got.World.Width, got.World.Height)
	}
	if got.Energy.DeadAgentBonus != 4 {
		t.Fatalf("bonus=%g want 4", got.Energy.DeadAgentBonus)
	}
	if got.Energy.BaseCost != 0.2 || got.Agents.MaxAge != 1000 {
		t.Fatalf("defaults lost: base_cost=%g max_age=%d", got.Energy.BaseCost, got.Agents.MaxAge)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "world:\n  width: 0\ngenetics:\n  mutation_probability: 2\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"world size", "mutation_probability"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
