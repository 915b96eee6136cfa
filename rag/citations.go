package rag

import (
	"regexp"
	"strconv"

	"github.com/poiesic/scholarquery/core"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// parseCitations extracts [n] markers from a generated answer and resolves
// them against the passages that were in the prompt. Markers are 1-based;
// out-of-range markers are dropped, repeated markers count once, and order
// follows first appearance in the answer.
func parseCitations(answer string, passageCount int) []core.Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(matches))
	citations := make([]core.Citation, 0, len(matches))
	for _, match := range matches {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > passageCount {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, core.Citation{HitIndex: n - 1})
	}
	return citations
}
