package saem

import (
	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/residual"
)

// Result is the estimator's terminal state: fixed effects, random effect
// covariance, posterior individual parameters, Fisher accumulators,
// residual model per endpoint, and the parameter-history trajectory.
type Result struct {
	Plambda []float64 // concatenation of Plambda1 and Plambda0
	Gamma1  *mat.SymDense

	MpriorPhi *mat.Dense // N x nphi, final prior means
	MpostPhi  *mat.Dense // N x nphi, posterior mean over chains
	CpostPhi  *mat.Dense // N x nphi, posterior variance over chains (diagonal per subject)
	Eta       *mat.Dense // N x nphi1, mpost_phi[:,Ix1] - mprior_phi1, masked by Ue

	Ha, Hb *mat.Dense // Fisher-information surrogates
	L      []float64  // accumulated score

	ResMat   *mat.Dense // nendpnt x 4: a, b, c, lambda per endpoint
	TransMat *mat.Dense // nendpnt x 4: lambda, yj, lo, hi per endpoint
	ResInfo  []residual.Params

	ParHist *mat.Dense // niter x (kept columns)

	// Iterations actually completed before Fit returned (== Niter unless
	// the context was cancelled mid-run).
	IterationsDone int
}
