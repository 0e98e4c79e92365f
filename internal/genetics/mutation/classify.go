package mutation

import (
	"regexp"
	"strings"
)

// Category is what kind of edit a selected line receives. Exactly one per line.
type Category uint8

const (
	None Category = iota
	Threshold
	Probability
	Personality
	Numeric
	Operator
)

func (c Category) String() string {
	switch c {
	case Threshold:
		return "threshold"
	case Probability:
		return "probability"
	case Personality:
		return "personality"
	case Numeric:
		return "numeric"
	case Operator:
		return "operator"
	}
	return "none"
}

// Match locates the text a transform rewrites. Spans are byte offsets into the line;
// Personality carries two spans (low and high bound), every other category one.
type Match struct {
	Category Category
	Spans    [][2]int
}

const numPattern = `\d+(?:\.\d+)?`

var (
	thresholdFwd = regexp.MustCompile(`(?i)\b\w*energy\w*\s*(?:<=|>=|==|!=|<|>)\s*(` + numPattern + `)\b`)
	thresholdRev = regexp.MustCompile(`(?i)\b(` + numPattern + `)\s*(?:<=|>=|==|!=|<|>)\s*\w*energy`)

	randomDraw     = `(?:random\.random|Math\.random|rand\.Float64)\(\)`
	probabilityFwd = regexp.MustCompile(randomDraw + `\s*(?:<=|>=|<|>)\s*(0?\.\d+)\b`)
	probabilityRev = regexp.MustCompile(`(?:^|[^\w.])(0?\.\d+)\s*(?:<=|>=|<|>)\s*` + randomDraw)

	numericLiteral = regexp.MustCompile(`\b` + numPattern + `\b`)
)

// Classifier assigns a line to one category by fixed priority:
// threshold, probability, personality, numeric, operator.
type Classifier struct {
	personality *regexp.Regexp
}

func NewClassifier(traitKeys []string) *Classifier {
	c := &Classifier{}
	if len(traitKeys) > 0 {
		quoted := make([]string, 0, len(traitKeys))
		for _, k := range traitKeys {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
		c.personality = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b['"]?\s*[:=]\s*random\.uniform\(\s*(` +
			numPattern + `)\s*,\s*(` + numPattern + `)\s*\)`)
	}
	return c
}

func (c *Classifier) Classify(line string) Match {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
		return Match{}
	}

	if m := firstGroup(thresholdFwd, line); m != nil {
		return Match{Category: Threshold, Spans: [][2]int{*m}}
	}
	if m := firstGroup(thresholdRev, line); m != nil {
		return Match{Category: Threshold, Spans: [][2]int{*m}}
	}
	if m := firstGroup(probabilityFwd, line); m != nil {
		return Match{Category: Probability, Spans: [][2]int{*m}}
	}
	if m := firstGroup(probabilityRev, line); m != nil {
		return Match{Category: Probability, Spans: [][2]int{*m}}
	}
	if c.personality != nil {
		if loc := c.personality.FindStringSubmatchIndex(line); loc != nil {
			return Match{Category: Personality, Spans: [][2]int{{loc[2], loc[3]}, {loc[4], loc[5]}}}
		}
	}
	if locs := numericLiteral.FindAllStringIndex(line, -1); len(locs) > 0 {
		spans := make([][2]int, 0, len(locs))
		for _, l := range locs {
			spans = append(spans, [2]int{l[0], l[1]})
		}
		return Match{Category: Numeric, Spans: spans}
	}
	if spans := operatorSpans(line); len(spans) > 0 {
		return Match{Category: Operator, Spans: spans}
	}
	return Match{}
}

func firstGroup(re *regexp.Regexp, line string) *[2]int {
	loc := re.FindStringSubmatchIndex(line)
	if loc == nil || loc[2] < 0 {
		return nil
	}
	return &[2]int{loc[2], loc[3]}
}

// operatorSpans finds comparison operators that are not part of <<, >>, <<=, >>=, ->, =>, <>.
func operatorSpans(line string) [][2]int {
	var out [][2]int
	isOpChar := func(b byte) bool { return b == '<' || b == '>' || b == '=' || b == '!' || b == '-' }
	for i := 0; i < len(line); i++ {
		var n int
		switch {
		case i+1 < len(line) && (line[i:i+2] == "<=" || line[i:i+2] == ">=" || line[i:i+2] == "==" || line[i:i+2] == "!="):
			n = 2
		case line[i] == '<' || line[i] == '>':
			n = 1
		default:
			continue
		}
		if i > 0 && isOpChar(line[i-1]) {
			i += n - 1
			continue
		}
		if j := i + n; j < len(line) && (line[j] == '<' || line[j] == '>' || line[j] == '=') {
			i += n - 1
			continue
		}
		out = append(out, [2]int{i, i + n})
		i += n - 1
	}
	return out
}
