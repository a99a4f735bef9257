// Package vectorindex implements the Vector Index (C4): an IVF-PQ
// approximate nearest-neighbour structure over L2-normalised dense
// vectors, with an exact-refinement rescoring step (RFlat) stabilising
// the ranking near the top of the short-list. The on-disk persistence
// pattern (temp file + atomic rename, sidecar metadata) follows the
// teacher's HNSW store.
package vectorindex

import (
	"gonum.org/v1/gonum/floats"
)

// Vector is a dense embedding. Dimension is fixed per Index.
type Vector []float32

// Normalize returns a copy of v scaled to unit L2 norm. A zero vector
// is returned unchanged (its norm is already zero).
func Normalize(v Vector) Vector {
	f64 := toFloat64(v)
	norm := floats.Norm(f64, 2)
	if norm == 0 {
		return append(Vector(nil), v...)
	}
	out := make(Vector, len(v))
	for i, x := range f64 {
		out[i] = float32(x / norm)
	}
	return out
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b Vector) float64 {
	return floats.Dot(toFloat64(a), toFloat64(b))
}

// squaredL2 computes squared Euclidean distance between two equal-length vectors.
func squaredL2(a, b Vector) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func toFloat64(v Vector) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
