// Package vector holds the float64 vector arithmetic shared by the gallery,
// the matcher and the embedder.
package vector

import (
	"errors"
	"fmt"
	"math"
)

// UnitTolerance is how far from 1 an L2 norm may drift and still count as a
// unit vector.
const UnitTolerance = 1e-3

// ErrZeroNorm is returned when a vector cannot be normalized because its
// norm is zero or not finite.
var ErrZeroNorm = errors.New("vector: zero or non-finite norm")

// Dot returns the dot product of a and b.
// Callers must make sure the lengths agree.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrZeroNorm)
	}
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrZeroNorm
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, nil
}

// EnsureUnit returns a copy of v with unit norm. Only vectors whose norm is
// exactly 1 are copied unchanged; anything else is rescaled.
func EnsureUnit(v []float64) ([]float64, error) {
	if len(v) > 0 && Norm(v) == 1 {
		return append([]float64(nil), v...), nil
	}
	return Normalize(v)
}

// IsUnit reports whether v has an L2 norm within UnitTolerance of 1.
func IsUnit(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	return math.Abs(Norm(v)-1) <= UnitTolerance
}

// Finite reports whether every component of v is a finite number.
func Finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
