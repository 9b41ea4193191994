package utils

import "math"

// NormalizeL2 divides x in place by its L2 norm so that the inner product of two
// normalized vectors is their cosine similarity. A zero vector is left unchanged.
func NormalizeL2(x []float64) {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range x {
		x[i] /= norm
	}
}

// ToFloat64 widens a model output vector. The returned slice is a copy.
func ToFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}
