package embeddings

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	t.Run("normalizes to unit length", func(t *testing.T) {
		vec := []float32{3, 4}
		if !NormalizeL2(vec) {
			t.Fatal("expected non-zero vector to normalize")
		}

		const tol = 1e-5
		if math.Abs(float64(vec[0])-0.6) > tol || math.Abs(float64(vec[1])-0.8) > tol {
			t.Errorf("expected (0.6, 0.8), got (%f, %f)", vec[0], vec[1])
		}
	})

	t.Run("zero vector reports false", func(t *testing.T) {
		v := []float32{0, 0, 0}
		if NormalizeL2(v) {
			t.Error("zero vector should not normalize")
		}

		if v[0] != 0 || v[1] != 0 || v[2] != 0 {
			t.Errorf("zero vector should remain unchanged: got %v", v)
		}
	})

	t.Run("normalized copy leaves input intact", func(t *testing.T) {
		in := []float32{0, 2}
		out := Normalized(in)

		if in[1] != 2 {
			t.Errorf("input modified: %v", in)
		}

		if out[1] != 1 {
			t.Errorf("expected (0, 1), got %v", out)
		}
	})
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 5}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %f, want %f", got, tt.want)
			}
		})
	}

	if _, err := Cosine([]float32{1}, []float32{1, 2}); err != ErrDimensionMismatch {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestDotOnUnitVectorsMatchesCosine(t *testing.T) {
	a := Normalized([]float32{1, 3, -2})
	b := Normalized([]float32{4, 0, 1})

	dot, err := Dot(a, b)
	if err != nil {
		t.Fatal(err)
	}

	cos, _ := Cosine(a, b)
	if math.Abs(dot-cos) > 1e-6 {
		t.Errorf("dot %f != cosine %f", dot, cos)
	}
}

func TestClampUnit(t *testing.T) {
	for in, want := range map[float64]float64{-0.3: 0, 0.42: 0.42, 1.0000001: 1, math.NaN(): 0} {
		if got := ClampUnit(in); got != want {
			t.Errorf("ClampUnit(%v) = %v, want %v", in, got, want)
		}
	}
}
