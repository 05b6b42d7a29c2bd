package saem

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/residual"
)

func TestRegressCoefficientsRecoversInterceptMean(t *testing.T) {
	cov := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	statphi := mat.NewDense(4, 1, []float64{2, 4, 6, 8})
	coefMap := []CoefEntry{{Lambda: 0, Cov: 0, Phi: 0}}

	got, err := regressCoefficients(cov, statphi, coefMap, 1, 1)
	if err != nil {
		t.Fatalf("regressCoefficients returned error: %v", err)
	}
	if want := 5.0; got[0] != want {
		t.Errorf("got %v, want %v", got[0], want)
	}
}

func TestOverlayFixedSnapsToInit(t *testing.T) {
	plambda := []float64{1, 2, 3}
	overlayFixed(plambda, []int{1}, []float64{0, 99, 0})
	if plambda[1] != 99 {
		t.Errorf("plambda[1] = %v, want 99", plambda[1])
	}
	if plambda[0] != 1 || plambda[2] != 3 {
		t.Errorf("overlayFixed touched non-frozen entries: %v", plambda)
	}
}

func TestDiagonalOnlySymZeroesOffDiagonal(t *testing.T) {
	a := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})
	out := diagonalOnlySym(a)
	if out.At(0, 1) != 0 {
		t.Errorf("off-diagonal = %v, want 0", out.At(0, 1))
	}
	if out.At(0, 0) != 1 || out.At(1, 1) != 2 {
		t.Errorf("diagonal altered: %v, %v", out.At(0, 0), out.At(1, 1))
	}
}

func TestCovarianceGZeroWhenStatMatchesPrior(t *testing.T) {
	mprior := mat.NewDense(2, 1, []float64{1, 1})
	var statphi2 mat.Dense
	statphi2.Mul(mprior.T(), mprior)
	g := covarianceG(mprior, &statphi2, mprior, 2)
	if v := g.At(0, 0); v != 0 {
		t.Errorf("covarianceG = %v, want 0 when statphi2 exactly matches mprior'mprior", v)
	}
}

func TestResidualStepSizeSnapsBeforeBurnIn(t *testing.T) {
	cur := residual.Params{A: 0.1}
	target := residual.Params{A: 0.9}
	got := residualStepSize(cur, target, 0.5, false)
	if got.A != target.A {
		t.Errorf("pre-burn-in residualStepSize = %v, want snap to %v", got.A, target.A)
	}
}

func TestResidualStepSizeBlendsAfterBurnIn(t *testing.T) {
	cur := residual.Params{A: 0.0}
	target := residual.Params{A: 1.0}
	got := residualStepSize(cur, target, 0.25, true)
	if want := 0.25; got.A != want {
		t.Errorf("blended residualStepSize = %v, want %v", got.A, want)
	}
}

func TestEffectiveFreeDropsFixedScalars(t *testing.T) {
	free := residual.Free{A: true, B: true}
	fixed := residual.Free{B: true}
	out := effectiveFree(free, fixed)
	if !out.A || out.B {
		t.Errorf("effectiveFree = %+v, want A free, B dropped", out)
	}
}

func TestOverlayResidualFixedAppliesFrozenValue(t *testing.T) {
	p := residual.Params{A: 1, B: 2}
	out := overlayResidualFixed(p, residual.Free{B: true}, residual.Params{B: 99})
	if out.B != 99 {
		t.Errorf("overlayResidualFixed.B = %v, want 99", out.B)
	}
	if out.A != 1 {
		t.Errorf("overlayResidualFixed touched non-fixed field: A = %v", out.A)
	}
}
