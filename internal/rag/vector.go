package rag

import "math"

// fallbackDims is the size of the deterministic fallback vector.
const fallbackDims = 16

// Cosine returns the cosine similarity of a and b over their shared prefix.
// It returns 0 when either vector is empty or has zero norm. Vectors of
// different lengths are compared over the shorter length and never padded.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FallbackVector derives a deterministic 16-slot vector from text: the code
// point of the i-th character is added to slot i mod 16.
func FallbackVector(text string) []float64 {
	v := make([]float64, fallbackDims)
	i := 0
	for _, r := range text {
		v[i%fallbackDims] += float64(r)
		i++
	}
	return v
}
