// Package predict wraps the external ODE solver behind a fixed contract:
// given sampled individual parameters and an event matrix, produce one
// (prediction, censoring flag, Tobit limit) triple per observation,
// relaxing solver tolerances and retrying on a "bad solve" before giving
// up.
package predict

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/likelihood"
)

// SolverOptions is the opaque bag of tolerances the external ODE solver
// consumes, mirroring the `opt`/`optM`/`.rx`/`.pars` fields the source
// forwards to its solver. Only the two tolerance fields are interpreted
// here; everything else is forwarded to the solver untouched.
type SolverOptions struct {
	AbsTol float64
	RelTol float64
	Extra  map[string]any
}

// Scale returns a copy of opts with both tolerances multiplied by factor,
// used to relax tolerances on a bad-solve retry.
func (o SolverOptions) Scale(factor float64) SolverOptions {
	out := o
	out.AbsTol *= factor
	out.RelTol *= factor
	return out
}

// Prediction is the adapter's output: one row per observation, preserving
// input row order and count.
type Prediction struct {
	F      []float64
	Cens   []likelihood.Censoring
	Limit  []float64
}

// BadSolveError is returned by a Solver when the external ODE integration
// failed for at least one individual; the adapter relaxes tolerances and
// retries on this specific error.
type BadSolveError struct {
	Cause error
}

func (e *BadSolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("predict: bad solve: %v", e.Cause)
	}
	return "predict: bad solve"
}

func (e *BadSolveError) Unwrap() error { return e.Cause }

// Solver is the external collaborator this package adapts: a black-box ODE
// predictor. It is intentionally out of this module's scope; production
// callers supply a concrete implementation that drives a compiled ODE
// system.
type Solver interface {
	Predict(phi *mat.Dense, evt *mat.Dense, opts SolverOptions) (Prediction, error)
}

// Adapter retries a Solver on bad solves and guards against NaN
// predictions.
type Adapter struct {
	Solver          Solver
	MaxOdeRecalc    int
	OdeRecalcFactor float64

	warnedNaN bool
}

// Predict calls the underlying Solver, relaxing tolerances by
// OdeRecalcFactor and retrying up to MaxOdeRecalc times on a BadSolveError,
// restoring the original tolerances before returning. Any NaN entries in
// the returned prediction are replaced by 1e99 and trigger a one-shot
// warning for the lifetime of this Adapter.
func (ad *Adapter) Predict(phi *mat.Dense, evt *mat.Dense, opts SolverOptions) (Prediction, error) {
	cur := opts
	var pred Prediction
	var err error

	attempts := ad.MaxOdeRecalc
	if attempts < 0 {
		attempts = 0
	}
	factor := ad.OdeRecalcFactor
	if factor <= 0 {
		factor = 10
	}

	for try := 0; ; try++ {
		pred, err = ad.Solver.Predict(phi, evt, cur)
		var bad *BadSolveError
		if err == nil || !asBadSolve(err, &bad) || try >= attempts {
			break
		}
		cur = cur.Scale(factor)
	}

	// cur holds the (possibly relaxed) tolerances used for the last attempt;
	// opts itself was passed by value, so the caller's original tolerances
	// are untouched regardless of how many relaxations this call applied.

	if err != nil {
		var bad *BadSolveError
		if asBadSolve(err, &bad) {
			// Final bad solve: the downstream NaN-guard below still applies
			// to whatever the solver produced.
		} else {
			return Prediction{}, err
		}
	}

	ad.guardNaN(&pred)
	return pred, nil
}

func asBadSolve(err error, target **BadSolveError) bool {
	for err != nil {
		if b, ok := err.(*BadSolveError); ok {
			*target = b
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (ad *Adapter) guardNaN(pred *Prediction) {
	for i, f := range pred.F {
		if f != f { // NaN
			pred.F[i] = 1e99
			if !ad.warnedNaN {
				ad.warnedNaN = true
				fmt.Println("predict: warning: NaN prediction replaced by 1e99 (reported once per fit)")
			}
		}
	}
}
