package memory

import "testing"

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %v", got)
	}
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("expected 0 for zero-norm vector, got %v", got)
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	got := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if got < 0.999 || got > 1.001 {
		t.Fatalf("expected ~1 for identical vectors, got %v", got)
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	got := cosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	if got < -1.001 || got > -0.999 {
		t.Fatalf("expected ~-1 for opposite vectors, got %v", got)
	}
}

func TestKeywordOverlapScoreNoTokens(t *testing.T) {
	if got := keywordOverlapScore(map[string]struct{}{}, "anything"); got != 0 {
		t.Fatalf("expected 0 for empty query, got %v", got)
	}
}

func TestKeywordOverlapScorePartialMatch(t *testing.T) {
	query := uniqueTokenSet(tokenize("dead player vote"))
	score := keywordOverlapScore(query, "can a dead player still vote in this game")
	if score <= 0 || score > 1 {
		t.Fatalf("expected score in (0,1], got %v", score)
	}
}

func TestChunkWordsSingleChunkUnderLimit(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "w"
	}
	chunks := chunkWords(words, 500, 50)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for N<=500, got %d", len(chunks))
	}
}

func TestChunkWordsFormula(t *testing.T) {
	// N=950 words, chunk=500, overlap=50: step=450.
	// ceil((950-50)/450) = ceil(900/450) = 2.
	words := make([]string, 950)
	for i := range words {
		words[i] = "w"
	}
	chunks := chunkWords(words, 500, 50)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for N=950, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > 500 {
			t.Fatalf("chunk exceeds 500 words: %d", len(c))
		}
	}
}
