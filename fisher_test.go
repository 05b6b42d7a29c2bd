package saem

import (
	"testing"
)

func TestFdGradientMatchesAnalyticOnQuadratic(t *testing.T) {
	// f(x) = x0^2 + 2*x1^2, grad = (2*x0, 4*x1)
	f := func(x []float64) (float64, error) {
		return x[0]*x[0] + 2*x[1]*x[1], nil
	}
	theta := []float64{3, 1}
	grad := make([]float64, 2)
	if err := fdGradient(f, theta, grad); err != nil {
		t.Fatalf("fdGradient returned error: %v", err)
	}
	if d := grad[0] - 6; d > 1e-3 || d < -1e-3 {
		t.Errorf("grad[0] = %v, want ~6", grad[0])
	}
	if d := grad[1] - 4; d > 1e-3 || d < -1e-3 {
		t.Errorf("grad[1] = %v, want ~4", grad[1])
	}
}

func TestFdHessianDiagMatchesAnalyticOnQuadratic(t *testing.T) {
	f := func(x []float64) (float64, error) {
		return x[0]*x[0] + 2*x[1]*x[1], nil
	}
	theta := []float64{3, 1}
	hess, err := fdHessianDiag(f, theta)
	if err != nil {
		t.Fatalf("fdHessianDiag returned error: %v", err)
	}
	if d := hess[0] - 2; d > 1e-2 || d < -1e-2 {
		t.Errorf("hess[0] = %v, want ~2", hess[0])
	}
	if d := hess[1] - 4; d > 1e-2 || d < -1e-2 {
		t.Errorf("hess[1] = %v, want ~4", hess[1])
	}
}

func TestUpdateFisherNoopWhenNoFreeParams(t *testing.T) {
	e := &estimator{cfg: &Config{Nmc: 1}}
	called := false
	chainFn := func(chain int) NegLogLikFunc {
		return func(theta []float64) (float64, error) {
			called = true
			return 0, nil
		}
	}
	if err := e.updateFisher(chainFn, 0.5); err != nil {
		t.Fatalf("updateFisher returned error: %v", err)
	}
	if called {
		t.Errorf("updateFisher called negLogLikAt when nparam == 0")
	}
}
