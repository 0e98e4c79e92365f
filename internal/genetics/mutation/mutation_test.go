package mutation

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

var traits = []string{"aggression", "caution"}

func TestClassify_Priority(t *testing.T) {
	c := NewClassifier(traits)
	cases := []struct {
		line string
		want Category
		lit  string
	}{
		{"    if my_energy >= 10:", Threshold, "10"},
		{"    if 3 < energy and x > 5:", Threshold, "3"},
		{"    if random.random() < 0.3:", Probability, "0.3"},
		{"    if .25 > random.random():", Probability, ".25"},
		{"    'aggression': random.uniform(0.2, 0.8),", Personality, "0.2"},
		{"    caution = random.uniform(0.1, 0.5)", Personality, "0.1"},
		{"    memory['positions'] = visited[-20:]", Numeric, "20"},
		{"    if threats > count:", Operator, ">"},
		{"    x = y << 2", Numeric, "2"},
		{"    x <<= y", None, ""},
		{"    # energy >= 10 in a comment", None, ""},
		{"", None, ""},
		{"    return action", None, ""},
		{"    mask = a >> b", None, ""},
		{"    f = lambda: x -> y", None, ""},
	}
	for _, tc := range cases {
		m := c.Classify(tc.line)
		if m.Category != tc.want {
			t.Fatalf("%q: category=%s want %s", tc.line, m.Category, tc.want)
		}
		if tc.want == None {
			continue
		}
		sp := m.Spans[0]
		if got := tc.line[sp[0]:sp[1]]; got != tc.lit {
			t.Fatalf("%q: first span=%q want %q", tc.line, got, tc.lit)
		}
	}
}

func TestMutate_PreservesLineCountAndUnmatchedLines(t *testing.T) {
	src := strings.Join([]string{
		"#!/usr/bin/env python3",
		"import json",
		"",
		"PERSONALITY = {",
		"    'aggression': random.uniform(0.2, 0.8),",
		"}",
		"def choose(state):",
		"    energy = state['energy']",
		"    if energy >= 10:",
		"        return {'action': 'replicate'}",
		"    if random.random() < 0.3:",
		"        return {'action': 'move', 'target': 'north'}",
		"    if a > b:",
		"        pass",
		"    return {'action': 'rest'}",
		"",
	}, "\n")
	for seed := int64(0); seed < 50; seed++ {
		e := New(Config{LineRate: 1, PersonalityMin: 0, PersonalityMax: 1, TraitKeys: traits}, rand.New(rand.NewSource(seed)))
		out := e.Mutate(src)
		inLines := strings.Split(src, "\n")
		outLines := strings.Split(out, "\n")
		if len(inLines) != len(outLines) {
			t.Fatalf("seed %d: line count %d want %d", seed, len(outLines), len(inLines))
		}
		c := NewClassifier(traits)
		for i, l := range inLines {
			if c.Classify(l).Category == None && outLines[i] != l {
				t.Fatalf("seed %d: unmatched line %d changed: %q -> %q", seed, i, l, outLines[i])
			}
		}
	}
}

func TestMutate_ZeroRateIsIdentity(t *testing.T) {
	src := "if energy > 5:\n    x = 3\n"
	e := New(Config{LineRate: 0}, rand.New(rand.NewSource(1)))
	if got := e.Mutate(src); got != src {
		t.Fatalf("got %q want unchanged", got)
	}
}

func TestMutate_DeterministicForSeed(t *testing.T) {
	src := "if energy > 5:\n    x = 30\n    if random.random() < 0.4:\n        y = a < b\n"
	cfg := Config{LineRate: 0.7, PersonalityMax: 1}
	a := New(cfg, rand.New(rand.NewSource(99))).Mutate(src)
	b := New(cfg, rand.New(rand.NewSource(99))).Mutate(src)
	if a != b {
		t.Fatalf("same seed produced different output:\n%s\n---\n%s", a, b)
	}
}

func TestShiftInt_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		for _, n := range []int{0, 1, 5, 10} {
			got := ShiftInt(n, rng)
			d := got - n
			if d == 0 || d < -2 || d > 2 || got < 0 {
				t.Fatalf("ShiftInt(%d)=%d out of small-int bounds", n, got)
			}
		}
		got := ShiftInt(100, rng)
		if got < 80 || got > 120 || got == 100 {
			t.Fatalf("ShiftInt(100)=%d outside +/-20%%", got)
		}
	}
}

func TestShiftProbability_Clamped(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		p := rng.Float64()
		got := ShiftProbability(p, rng)
		if got < 0.1 || got > 0.9 {
			t.Fatalf("ShiftProbability(%g)=%g outside [0.1,0.9]", p, got)
		}
	}
}

func TestShiftRange_CorrelatedAndClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		lo, hi := ShiftRange(0.3, 0.6, 0, 1, rng)
		if lo < 0 || hi > 1 || lo > hi {
			t.Fatalf("range [%g,%g] invalid", lo, hi)
		}
		if w := hi - lo; w < 0.299 || w > 0.301 {
			t.Fatalf("unclamped shift changed width: %g", w)
		}
	}
	lo, hi := ShiftRange(0.95, 1.0, 0, 1, rand.New(rand.NewSource(1)))
	if hi > 1 || lo > hi {
		t.Fatalf("clamp failed: [%g,%g]", lo, hi)
	}
}

func TestSwapOperator_StaysInFamily(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		for _, op := range orderingOps {
			got := SwapOperator(op, rng)
			if got == op || !contains(orderingOps, got) {
				t.Fatalf("SwapOperator(%q)=%q", op, got)
			}
		}
		if got := SwapOperator("==", rng); got != "!=" {
			t.Fatalf("SwapOperator(==)=%q want !=", got)
		}
	}
}

func TestMutateLine_NumbersStayNonNegative(t *testing.T) {
	e := New(Config{LineRate: 1}, rand.New(rand.NewSource(2)))
	for i := 0; i < 300; i++ {
		out := e.MutateLine("    x = arr[0] + 1.5")
		for _, lit := range numericLiteral.FindAllString(out, -1) {
			if f, err := strconv.ParseFloat(lit, 64); err != nil || f < 0 {
				t.Fatalf("bad literal %q in %q", lit, out)
			}
		}
		if strings.Contains(out, "-") {
			t.Fatalf("negative literal introduced: %q", out)
		}
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func TestMutate_SeedAgentsKeepShape(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "..", "agents", "*.py"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Skip("no seed agents")
	}
	keys := []string{"aggression", "caution", "greed", "sociability", "curiosity", "patience"}
	e := New(Config{LineRate: 1, PersonalityMin: 0, PersonalityMax: 1, TraitKeys: keys}, rand.New(rand.NewSource(9)))
	c := NewClassifier(keys)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		src := string(b)
		out := e.Mutate(src)
		in, got := strings.Split(src, "\n"), strings.Split(out, "\n")
		if len(in) != len(got) {
			t.Fatalf("%s: %d lines became %d", filepath.Base(f), len(in), len(got))
		}
		for i := range in {
			if c.Classify(in[i]).Category == None && in[i] != got[i] {
				t.Fatalf("%s:%d unmatched line changed: %q -> %q", filepath.Base(f), i+1, in[i], got[i])
			}
		}
	}
}
