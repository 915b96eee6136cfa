package cache

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// QueryKey builds a stable cache key for a retrieval request. The topic
// filter is sorted so permutations of the same filter share an entry.
func QueryKey(text string, topK int, filter []int32) string {
	sorted := slices.Clone(filter)
	slices.Sort(sorted)

	parts := make([]string, len(sorted))
	for i, topic := range sorted {
		parts[i] = fmt.Sprintf("%d", topic)
	}
	return fmt.Sprintf("q:%s:%d:%s", TextKey(text), topK, strings.Join(parts, ","))
}

// TextKey builds a fixed-length key from arbitrary text, for embedding
// lookups.
func TextKey(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:16])
}
