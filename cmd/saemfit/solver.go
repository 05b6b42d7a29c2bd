package main

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/likelihood"
	"github.com/pmxsaem/saem/internal/predict"
)

// onecompSolver is the demo predict.Solver: a closed-form one-compartment
// IV-bolus model, C(t) = dose/V * exp(-CL/V * t), with phi columns [CL, V]
// in natural (positive) units per row. It stands in for the compiled ODE
// system predict.Adapter is built to wrap, an external predictor kept
// outside this module's scope, so the CLI has something runnable end to
// end.
type onecompSolver struct{}

func (onecompSolver) Predict(phi, evt *mat.Dense, _ predict.SolverOptions) (predict.Prediction, error) {
	n, _ := phi.Dims()
	out := predict.Prediction{
		F:     make([]float64, n),
		Cens:  make([]likelihood.Censoring, n),
		Limit: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		cl := phi.At(i, 0)
		v := phi.At(i, 1)
		t := evt.At(i, 0)
		dose := evt.At(i, 1)
		if v <= 0 {
			v = 1e-6
		}
		out.F[i] = dose / v * math.Exp(-cl/v*t)
		out.Limit[i] = math.Inf(-1)
	}
	return out, nil
}
