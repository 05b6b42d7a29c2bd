package saem

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/likelihood"
	"github.com/pmxsaem/saem/internal/predict"
)

func validConfig() *Config {
	n := 2
	return &Config{
		Niter: 1, Nmc: 1,
		Pas: []float64{1}, Pash: []float64{1},
		N:            n,
		Ix1:          []int{0},
		COV1:         mat.NewDense(n, 1, []float64{1, 1}),
		Y:            []float64{1, 2},
		IxIDM:        []int{0, 1},
		IxEndpnt:     []int{0, 0},
		NEndpnt:      1,
		Endpoints:    []EndpointSpec{{}},
		Ue:           mat.NewDense(n, 1, []float64{1, 1}),
		Distribution: likelihood.Gaussian,
		Gamma1Init:   mat.NewSymDense(1, []float64{1}),
		Solver:       fakeValidatorSolver{},
		Pars:         []string{"x"},
	}
}

type fakeValidatorSolver struct{}

func (fakeValidatorSolver) Predict(phi, evt *mat.Dense, _ predict.SolverOptions) (predict.Prediction, error) {
	return predict.Prediction{}, nil
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate returned error on well-formed config: %v", err)
	}
}

func TestValidateRejectsMissingSolver(t *testing.T) {
	cfg := validConfig()
	cfg.Solver = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a config with a nil Solver")
	}
}

func TestValidateRejectsMismatchedPasLength(t *testing.T) {
	cfg := validConfig()
	cfg.Pas = []float64{1, 1}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted Pas with length != Niter")
	}
}

func TestValidateRejectsWrongUeShape(t *testing.T) {
	cfg := validConfig()
	cfg.Ue = mat.NewDense(3, 1, []float64{1, 1, 1})
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a Ue matrix with the wrong row count")
	}
}

func TestNPhiHelpers(t *testing.T) {
	cfg := &Config{Ix1: []int{0, 1}, Ix0: []int{2}}
	if cfg.NPhi1() != 2 {
		t.Errorf("NPhi1() = %d, want 2", cfg.NPhi1())
	}
	if cfg.NPhi0() != 1 {
		t.Errorf("NPhi0() = %d, want 1", cfg.NPhi0())
	}
	if cfg.NPhi() != 3 {
		t.Errorf("NPhi() = %d, want 3", cfg.NPhi())
	}
}
