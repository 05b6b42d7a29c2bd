package transform

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestRoundTripIdentity(t *testing.T) {
	s := Spec{Yj: Identity}
	z, err := T(3.5, s)
	if err != nil {
		t.Fatalf("T returned error: %v", err)
	}
	y, err := Invert(z, s)
	if err != nil {
		t.Fatalf("Invert returned error: %v", err)
	}
	if !almostEqual(y, 3.5, 1e-12) {
		t.Errorf("round trip = %v, want 3.5", y)
	}
}

func TestRoundTripLog(t *testing.T) {
	s := Spec{Yj: Log}
	for _, y0 := range []float64{0.01, 1, 100} {
		z, err := T(y0, s)
		if err != nil {
			t.Fatalf("T(%v) returned error: %v", y0, err)
		}
		y, err := Invert(z, s)
		if err != nil {
			t.Fatalf("Invert returned error: %v", err)
		}
		if !almostEqual(y, y0, 1e-9) {
			t.Errorf("round trip(%v) = %v", y0, y)
		}
	}
}

func TestRoundTripBoxCox(t *testing.T) {
	for _, lambda := range []float64{0, 0.5, 1, 2} {
		s := Spec{Yj: BoxCox, Lambda: lambda}
		for _, y0 := range []float64{0.1, 1, 5, 20} {
			z, err := T(y0, s)
			if err != nil {
				t.Fatalf("T(%v, lambda=%v) error: %v", y0, lambda, err)
			}
			y, err := Invert(z, s)
			if err != nil {
				t.Fatalf("Invert error: %v", err)
			}
			if !almostEqual(y, y0, 1e-9) {
				t.Errorf("box-cox round trip(lambda=%v, y=%v) = %v", lambda, y0, y)
			}
		}
	}
}

func TestRoundTripYeoJohnson(t *testing.T) {
	for _, lambda := range []float64{0, 0.5, 1, 1.5, 2} {
		s := Spec{Yj: YeoJohnson, Lambda: lambda}
		for _, y0 := range []float64{-5, -1, 0, 1, 5} {
			z, err := T(y0, s)
			if err != nil {
				t.Fatalf("T(%v, lambda=%v) error: %v", y0, lambda, err)
			}
			y, err := Invert(z, s)
			if err != nil {
				t.Fatalf("Invert error: %v", err)
			}
			if !almostEqual(y, y0, 1e-8) {
				t.Errorf("yeo-johnson round trip(lambda=%v, y=%v) = %v", lambda, y0, y)
			}
		}
	}
}

func TestBoundedVariantClips(t *testing.T) {
	s := Spec{Yj: BoxCoxBounded, Lambda: 1, Lo: 0, Hi: 10}
	// Forward transform of an out-of-range observation, then invert: the
	// inverse must land inside [Lo, Hi] even though the unclipped algebraic
	// inverse would not.
	z, err := T(1000, Spec{Yj: BoxCox, Lambda: 1})
	if err != nil {
		t.Fatalf("T error: %v", err)
	}
	y, err := Invert(z, s)
	if err != nil {
		t.Fatalf("Invert error: %v", err)
	}
	if y != 10 {
		t.Errorf("bounded invert = %v, want clipped to Hi=10", y)
	}
}

func TestLogRejectsNonPositive(t *testing.T) {
	_, err := T(0, Spec{Yj: Log})
	if err == nil {
		t.Fatal("expected error for log(0)")
	}
	_, err = T(-1, Spec{Yj: Log})
	if err == nil {
		t.Fatal("expected error for log(-1)")
	}
}

func TestToLambdaBijection(t *testing.T) {
	r := 5.0
	for _, x := range []float64{-4.9, -1, 0, 1, 4.9} {
		y := ToLambda(x, r)
		if math.Abs(y) >= r {
			t.Fatalf("ToLambda(%v) = %v escaped (-%v, %v)", x, y, r, r)
		}
		back := FromLambda(y, r)
		if !almostEqual(back, x, 1e-9) {
			t.Errorf("FromLambda(ToLambda(%v)) = %v, want %v", x, back, x)
		}
	}
}

func TestToLambdaPinsExtremes(t *testing.T) {
	r := 2.0
	y := ToLambda(1000, r)
	if y >= r || y <= -r {
		t.Fatalf("ToLambda(1000) = %v, want strictly inside (-%v, %v)", y, r, r)
	}
}
