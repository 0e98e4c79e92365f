package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintLen is the length of a genome fingerprint in hex characters.
const FingerprintLen = 16

// Fingerprint hashes the normalized form of source, so sources that differ only in comments,
// blank lines or interior whitespace share a fingerprint. ext picks the comment syntax.
func Fingerprint(source, ext string) string {
	sum := sha256.Sum256([]byte(Normalize(source, ext)))
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

// CommentMarker is the line comment token for genome files with extension ext. Anything that is
// not a C-family source is treated as a # language.
func CommentMarker(ext string) string {
	switch strings.ToLower(ext) {
	case ".js", ".mjs", ".ts", ".go", ".c", ".h", ".cc", ".cpp", ".java", ".kt", ".rs", ".swift", ".cs":
		return "//"
	}
	return "#"
}

// Normalize drops line comments outside string literals and blank lines, collapses runs of
// interior whitespace to one space and keeps leading indentation as a column count.
func Normalize(source, ext string) string {
	marker := CommentMarker(ext)
	var out []string
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimRight(stripComment(line, marker), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := 0
		for _, r := range line {
			if r == ' ' {
				indent++
			} else if r == '\t' {
				indent += 4
			} else {
				break
			}
		}
		body := strings.Join(strings.Fields(line), " ")
		out = append(out, strings.Repeat(" ", indent)+body)
	}
	return strings.Join(out, "\n")
}

func stripComment(line, marker string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(line[i:], marker):
			return line[:i]
		}
	}
	return line
}
