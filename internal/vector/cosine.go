package vector

import "math"

// Cosine returns the cosine similarity between a and b. Vectors of unequal
// length, empty vectors, and zero vectors all score 0 rather than raising an
// error, so a missing or malformed embedding degrades that candidate's score
// instead of failing the whole search. The result is always finite.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}
