package numeric

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func almostEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestSymInverseRoundTrip(t *testing.T) {
	a := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	inv, err := SymInverse(a)
	if err != nil {
		t.Fatalf("SymInverse returned error: %v", err)
	}

	var prod mat.Dense
	prod.Mul(a, inv)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if !almostEqual(prod.At(i, j), want, 1e-8) {
				t.Errorf("(A*Ainv)[%d][%d] = %v, want %v", i, j, prod.At(i, j), want)
			}
		}
	}
}

func TestSymInverseSingularFallback(t *testing.T) {
	// Singular (rank-1) matrix: SVD pseudoinverse path must still return
	// a symmetric matrix without erroring.
	a := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	inv, err := SymInverse(a)
	if err != nil {
		t.Fatalf("SymInverse returned error on singular input: %v", err)
	}
	if inv.At(0, 1) != inv.At(1, 0) {
		t.Errorf("pseudoinverse not symmetric: %v vs %v", inv.At(0, 1), inv.At(1, 0))
	}
}

func TestDiagFloor(t *testing.T) {
	a := mat.NewSymDense(2, []float64{0.001, 0, 0, 5})
	out := DiagFloor(a, []float64{0.01, 0.01})
	if out.At(0, 0) != 0.01 {
		t.Errorf("DiagFloor[0][0] = %v, want 0.01", out.At(0, 0))
	}
	if out.At(1, 1) != 5 {
		t.Errorf("DiagFloor[1][1] = %v, want 5 (already above floor)", out.At(1, 1))
	}
}

func TestMaskStruct(t *testing.T) {
	a := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})
	mask := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	out := MaskStruct(a, mask)
	if out.At(0, 1) != 0 {
		t.Errorf("MaskStruct off-diagonal = %v, want 0", out.At(0, 1))
	}
	if out.At(0, 0) != 1 || out.At(1, 1) != 2 {
		t.Errorf("MaskStruct diagonal altered: got %v, %v", out.At(0, 0), out.At(1, 1))
	}
}

func TestSolveSPD(t *testing.T) {
	a := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	b := mat.NewDense(2, 1, []float64{1, 2})
	x, err := SolveSPD(a, b)
	if err != nil {
		t.Fatalf("SolveSPD returned error: %v", err)
	}
	var check mat.Dense
	check.Mul(a, x)
	for i := 0; i < 2; i++ {
		if !almostEqual(check.At(i, 0), b.At(i, 0), 1e-8) {
			t.Errorf("A*x[%d] = %v, want %v", i, check.At(i, 0), b.At(i, 0))
		}
	}
}
