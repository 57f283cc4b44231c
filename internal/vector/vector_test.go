package vector

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeProducesUnitVectors(t *testing.T) {
	cases := [][]float64{
		{3, 4},
		{1, 0},
		{0.6, 0.8},
		{-2, 5, 0.25, 7},
		{1e-20, 1e-20},
	}
	for _, in := range cases {
		out, err := Normalize(in)
		if err != nil {
			t.Fatalf("normalize %v: %v", in, err)
		}
		if got := Dot(out, out); math.Abs(got-1) > 1e-6 {
			t.Fatalf("dot(q, q) = %v for %v", got, in)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := []float64{3, 4}
	if _, err := Normalize(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in[0] != 3 || in[1] != 4 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestNormalizeRejectsDegenerate(t *testing.T) {
	inf := math.Inf(1)
	for _, in := range [][]float64{nil, {}, {0, 0, 0}, {inf, 1}} {
		if _, err := Normalize(in); !errors.Is(err, ErrZeroNorm) {
			t.Fatalf("expected ErrZeroNorm for %v, got %v", in, err)
		}
	}
}

func TestEnsureUnitKeepsUnitVectorsExact(t *testing.T) {
	in := []float64{0, -1, 0}
	out, err := EnsureUnit(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != in[0] || out[1] != in[1] || out[2] != in[2] {
		t.Fatalf("expected exact copy, got %v", out)
	}
	out[0] = 42
	if in[0] == 42 {
		t.Fatal("expected a copy, input was aliased")
	}

	scaled, err := EnsureUnit([]float64{0, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scaled[0] != 0 || scaled[1] != 1 {
		t.Fatalf("expected [0 1], got %v", scaled)
	}
}

func TestEnsureUnitRescalesNearUnitVectors(t *testing.T) {
	in := []float64{1.0005, 0}
	if !IsUnit(in) {
		t.Fatalf("expected %v to be within UnitTolerance", in)
	}
	out, err := EnsureUnit(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != 1 || out[1] != 0 {
		t.Fatalf("expected [1 0], got %v", out)
	}
	if self := Dot(out, out); self > 1 {
		t.Fatalf("self similarity %v exceeds 1", self)
	}
}

func TestFinite(t *testing.T) {
	if !Finite([]float64{1, -2, 0}) {
		t.Fatal("expected finite")
	}
	if Finite([]float64{1, math.NaN()}) {
		t.Fatal("expected NaN to be rejected")
	}
}
