package cluster

import (
	"fmt"
	"sort"
	"strings"
)

// Stop words excluded from topic labels
var labelStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

const labelTermCount = 3

// labelFromTexts derives a human-readable cluster label from the most
// frequent terms of the member documents. Falls back to "topic-<id>" when
// the members yield no usable terms.
func labelFromTexts(id int32, texts []string) string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, word := range strings.Fields(text) {
			cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
			if cleaned == "" || labelStopWords[cleaned] {
				continue
			}
			counts[cleaned]++
		}
	}
	if len(counts) == 0 {
		return fmt.Sprintf("topic-%d", id)
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > labelTermCount {
		terms = terms[:labelTermCount]
	}
	return strings.Join(terms, "/")
}
