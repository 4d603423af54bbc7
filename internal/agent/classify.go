package agent

import "strings"

type complexity int

const (
	complexityEasy complexity = iota
	complexityHard
)

var hardMarkers = []string{
	"step by step",
	"prove",
	"derive",
	"algorithm",
	"debug",
	"refactor",
	"optimize",
	"complexity",
	"theorem",
	"tradeoff",
	"trade-off",
	"architecture",
}

// classifyComplexity is a cheap heuristic choosing between the default and
// the reasoning model. It only changes which endpoint gets called, never the
// protocol.
func classifyComplexity(text string) complexity {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "```") {
		return complexityHard
	}
	if len(lower) > 600 {
		return complexityHard
	}
	for _, marker := range hardMarkers {
		if strings.Contains(lower, marker) {
			return complexityHard
		}
	}
	return complexityEasy
}
