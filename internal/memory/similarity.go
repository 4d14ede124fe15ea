// Package memory implements the per-room short-term ring, the hybrid
// vector/keyword rules index, and the pluggable long-term store behind the
// Memory Manager.
package memory

import (
	"math"
	"sort"
	"strings"
)

// cosineSimilarity returns the cosine similarity of two equal-length,
// non-zero vectors. Mismatched lengths or a zero-norm vector return 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenize lowercases and splits on anything that isn't a letter or digit,
// the keyword-overlap half of hybrid retrieval. No stemming.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	return fields
}

func uniqueTokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// keywordOverlapScore counts distinct query tokens appearing in content,
// normalized by the number of distinct query tokens. Returns 0 if the query
// has no tokens.
func keywordOverlapScore(queryTokens map[string]struct{}, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := uniqueTokenSet(tokenize(content))
	matched := 0
	for t := range queryTokens {
		if _, ok := contentTokens[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// sortByScoreDesc sorts items in place by descending score with a stable
// tie-break on original (insertion) order.
func sortByScoreDesc[T any](items []T, score func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		return score(items[i]) > score(items[j])
	})
}
