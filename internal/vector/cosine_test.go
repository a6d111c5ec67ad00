package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSymmetry(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{2.2, 0.7, -0.4, 1.9}

	assert.Equal(t, Cosine(a, b), Cosine(b, a))
}

func TestCosineSelfSimilarity(t *testing.T) {
	a := []float32{0.5, 0.25, -0.75, 1.0}

	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
}

func TestCosineUnequalLengths(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}

	assert.Equal(t, 0.0, Cosine(a, b))
	assert.Equal(t, 0.0, Cosine(b, a))
}

func TestCosineEmptyVectors(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{}, []float32{}))
	assert.Equal(t, 0.0, Cosine(nil, []float32{1, 2}))
}

func TestCosineZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	a := []float32{1, 2, 3}

	assert.Equal(t, 0.0, Cosine(zero, a))
	assert.Equal(t, 0.0, Cosine(a, zero))
	assert.Equal(t, 0.0, Cosine(zero, zero))
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
}

func TestCosineOpposite(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}

	assert.InDelta(t, -1.0, Cosine(a, b), 1e-9)
}
