package vectorindex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProducesUnitVector(t *testing.T) {
	v := Vector{3, 4, 0}
	n := Normalize(v)
	norm := math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestNormalizeZeroVectorStaysZero(t *testing.T) {
	v := Vector{0, 0, 0}
	assert.Equal(t, v, Normalize(v))
}

func TestDotOfNormalizedParallelVectorsIsOne(t *testing.T) {
	a := Normalize(Vector{1, 2, 3})
	b := Normalize(Vector{2, 4, 6})
	assert.InDelta(t, 1.0, dot(a, b), 1e-6)
}

func TestSquaredL2OfIdenticalVectorsIsZero(t *testing.T) {
	v := Vector{1, 2, 3}
	assert.Equal(t, 0.0, squaredL2(v, v))
}
