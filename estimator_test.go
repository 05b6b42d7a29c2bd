package saem

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestBuildMCOVScattersCoefficients(t *testing.T) {
	plambda := []float64{1.5, 2.5}
	coefMap := []CoefEntry{{Lambda: 0, Cov: 0, Phi: 0}, {Lambda: 1, Cov: 1, Phi: 0}}
	m := buildMCOV(plambda, coefMap, 2, 1)
	if m.At(0, 0) != 1.5 {
		t.Errorf("m[0][0] = %v, want 1.5", m.At(0, 0))
	}
	if m.At(1, 0) != 2.5 {
		t.Errorf("m[1][0] = %v, want 2.5", m.At(1, 0))
	}
}

func TestNewEstimatorSkipsBlockZeroWhenEmpty(t *testing.T) {
	cfg := validConfig()
	e, err := newEstimator(cfg)
	if err != nil {
		t.Fatalf("newEstimator returned error: %v", err)
	}
	defer e.close()
	if e.nphi0 != 0 {
		t.Errorf("nphi0 = %d, want 0", e.nphi0)
	}
	if e.gamma0 != nil {
		t.Errorf("gamma0 should stay nil when nphi0 == 0")
	}
	mprior1, mprior0 := e.priorMeans()
	if r, c := mprior1.Dims(); r != cfg.N || c != 1 {
		t.Errorf("mprior1 dims = %d x %d, want %d x 1", r, c, cfg.N)
	}
	if r, c := mprior0.Dims(); r != cfg.N || c != 0 {
		t.Errorf("mprior0 dims = %d x %d, want %d x 0", r, c, cfg.N)
	}
}

func TestExtractColsPreservesOrder(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	out := extractCols(m, []int{2, 0})
	if out.At(0, 0) != 3 || out.At(0, 1) != 1 {
		t.Errorf("row 0 = [%v %v], want [3 1]", out.At(0, 0), out.At(0, 1))
	}
	if out.At(1, 0) != 6 || out.At(1, 1) != 4 {
		t.Errorf("row 1 = [%v %v], want [6 4]", out.At(1, 0), out.At(1, 1))
	}
}

func TestCloneSymIsIndependentCopy(t *testing.T) {
	a := mat.NewSymDense(2, []float64{1, 2, 2, 3})
	b := cloneSym(a)
	b.SetSym(0, 0, 99)
	if a.At(0, 0) == 99 {
		t.Error("cloneSym aliased the source matrix")
	}
}

func TestResKeepWidthCountsFreeScalarsOnly(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoints[0].Free.A = true
	cfg.Endpoints[0].Free.Lambda = true
	if w := resKeepWidth(cfg); w != 2 {
		t.Errorf("resKeepWidth = %d, want 2", w)
	}
}
