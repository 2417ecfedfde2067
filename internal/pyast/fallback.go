package pyast

import (
	"regexp"
	"strings"
)

// MatchKind names the component a fallback pattern recognized.
type MatchKind string

const (
	MatchAgent MatchKind = "agent"
	MatchTool  MatchKind = "tool"
	MatchTask  MatchKind = "task"
	MatchCrew  MatchKind = "crew"
)

// Match is one fallback hit: what looked like a component and where.
type Match struct {
	Kind MatchKind
	Line int
}

var fallbackPatterns = []struct {
	kind MatchKind
	re   *regexp.Regexp
}{
	{MatchAgent, regexp.MustCompile(`\bAgent\s*\(`)},
	{MatchTool, regexp.MustCompile(`\bclass\s+\w*Tool\s*\(`)},
	{MatchTool, regexp.MustCompile(`^\s*@tool\b`)},
	{MatchTask, regexp.MustCompile(`\bTask\s*\(`)},
	{MatchCrew, regexp.MustCompile(`\bCrew\s*\(`)},
}

// Scan runs the line-oriented fallback over text that failed to parse. It
// yields locations only; no arguments are interpreted.
func Scan(text string) []Match {
	var out []Match
	for i, line := range strings.Split(text, "\n") {
		for _, p := range fallbackPatterns {
			for range p.re.FindAllStringIndex(line, -1) {
				out = append(out, Match{Kind: p.kind, Line: i + 1})
			}
		}
	}
	return out
}
