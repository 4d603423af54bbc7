package memory

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embed computes a fixed-dimension hashed bag-of-words vector for text,
// L2-normalized. This is a cheap approximation of a semantic embedding:
// the interface stays the same if a real embedding model is swapped in.
func Embed(text string) []float64 {
	vec := make([]float64, EmbeddingDim)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%EmbeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CosineSimilarity computes cosine similarity for two equal-length vectors.
// A zero-norm or mismatched vector scores 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}
