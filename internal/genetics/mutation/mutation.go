// Package mutation rewrites agent source text with small, pattern-restricted edits.
//
// Every edit replaces a non-negative numeric literal with another non-negative literal of the
// same shape, or a comparison operator with another comparison operator. Lines are never
// added, removed or split, so a genome that parsed before a mutation still parses after it.
package mutation

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
)

type Config struct {
	LineRate       float64
	PersonalityMin float64
	PersonalityMax float64
	TraitKeys      []string
}

// Engine is not safe for concurrent use; the rng is owned by the caller's goroutine.
type Engine struct {
	cfg        Config
	rng        *rand.Rand
	classifier *Classifier
}

func New(cfg Config, rng *rand.Rand) *Engine {
	if cfg.PersonalityMax < cfg.PersonalityMin {
		cfg.PersonalityMin, cfg.PersonalityMax = cfg.PersonalityMax, cfg.PersonalityMin
	}
	return &Engine{cfg: cfg, rng: rng, classifier: NewClassifier(cfg.TraitKeys)}
}

// Mutate returns src with each line independently mutated with probability LineRate.
func (e *Engine) Mutate(src string) string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if e.rng.Float64() >= e.cfg.LineRate {
			continue
		}
		lines[i] = e.MutateLine(line)
	}
	return strings.Join(lines, "\n")
}

// MutateLine classifies line and applies its category's transform. Unmatched lines pass through.
func (e *Engine) MutateLine(line string) string {
	m := e.classifier.Classify(line)
	switch m.Category {
	case Threshold:
		return e.rewriteNumber(line, m.Spans[0])
	case Numeric:
		return e.rewriteNumber(line, m.Spans[e.rng.Intn(len(m.Spans))])
	case Probability:
		sp := m.Spans[0]
		p, err := strconv.ParseFloat(line[sp[0]:sp[1]], 64)
		if err != nil {
			return line
		}
		return splice(line, sp, formatUnit(ShiftProbability(p, e.rng)))
	case Personality:
		lo, err1 := strconv.ParseFloat(line[m.Spans[0][0]:m.Spans[0][1]], 64)
		hi, err2 := strconv.ParseFloat(line[m.Spans[1][0]:m.Spans[1][1]], 64)
		if err1 != nil || err2 != nil {
			return line
		}
		nlo, nhi := ShiftRange(lo, hi, e.cfg.PersonalityMin, e.cfg.PersonalityMax, e.rng)
		// High span first so the low span's offsets stay valid.
		out := splice(line, m.Spans[1], formatUnit(nhi))
		return splice(out, m.Spans[0], formatUnit(nlo))
	case Operator:
		sp := m.Spans[e.rng.Intn(len(m.Spans))]
		return splice(line, sp, SwapOperator(line[sp[0]:sp[1]], e.rng))
	}
	return line
}

func (e *Engine) rewriteNumber(line string, sp [2]int) string {
	lit := line[sp[0]:sp[1]]
	if !strings.Contains(lit, ".") {
		n, err := strconv.Atoi(lit)
		if err != nil {
			return line
		}
		return splice(line, sp, strconv.Itoa(ShiftInt(n, e.rng)))
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return line
	}
	return splice(line, sp, formatFloat(ShiftFloat(f, e.rng)))
}

// ShiftInt moves small integers (|n| <= 10) by 1 or 2 and larger ones by up to 20%.
// The result is never negative and never equal to n.
func ShiftInt(n int, rng *rand.Rand) int {
	var delta int
	if n <= 10 {
		delta = 1 + rng.Intn(2)
	} else {
		delta = int(math.Round(float64(n) * 0.2 * rng.Float64()))
		if delta < 1 {
			delta = 1
		}
	}
	if rng.Intn(2) == 0 {
		delta = -delta
	}
	out := n + delta
	if out < 0 {
		out = n + abs(delta)
	}
	return out
}

// ShiftFloat scales f by a factor in [0.8, 1.2].
func ShiftFloat(f float64, rng *rand.Rand) float64 {
	out := f * (1 + (rng.Float64()*0.4 - 0.2))
	if out < 0 {
		out = 0
	}
	return out
}

// ShiftProbability moves p by 0.1..0.3 in a random direction and clamps to [0.1, 0.9].
func ShiftProbability(p float64, rng *rand.Rand) float64 {
	delta := 0.1 + rng.Float64()*0.2
	if rng.Intn(2) == 0 {
		delta = -delta
	}
	return clamp(p+delta, 0.1, 0.9)
}

// ShiftRange moves both bounds by the same delta, clamps them into [min, max] and keeps lo <= hi.
func ShiftRange(lo, hi, min, max float64, rng *rand.Rand) (float64, float64) {
	delta := rng.Float64()*0.2 - 0.1
	lo = clamp(lo+delta, min, max)
	hi = clamp(hi+delta, min, max)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

var (
	orderingOps = []string{"<", ">", "<=", ">="}
	equalityOps = []string{"==", "!="}
)

// SwapOperator returns a different comparison operator from the same family as op.
func SwapOperator(op string, rng *rand.Rand) string {
	set := orderingOps
	if op == "==" || op == "!=" {
		set = equalityOps
	}
	choices := make([]string, 0, len(set)-1)
	for _, s := range set {
		if s != op {
			choices = append(choices, s)
		}
	}
	if len(choices) == 0 {
		return op
	}
	return choices[rng.Intn(len(choices))]
}

func splice(line string, sp [2]int, repl string) string {
	return line[:sp[0]] + repl + line[sp[1]:]
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func formatUnit(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
