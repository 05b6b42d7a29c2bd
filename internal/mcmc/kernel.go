// Package mcmc implements the three Metropolis kernels the estimator's
// sampling step cycles through: an independence sampler proposing straight
// from the population prior, a full random-walk proposal, and a
// coordinate-wise random walk. All three share one accept/reject step and
// take the data-likelihood evaluator as an injected dependency, so the
// kernel itself never calls the ODE predictor directly.
package mcmc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// RowEvaluator computes the data-likelihood contribution of one
// individual-chain row of phiM, returning its negative log-likelihood and
// the per-observation predictions that produced it (cached by the driver
// into fsave so later statistics don't re-solve).
type RowEvaluator func(row []float64, rowIdx int) (negLogLik float64, pred []float64, err error)

// Sink receives the cached predictions for an accepted row.
type Sink func(rowIdx int, pred []float64)

// Propose returns a candidate row for rowIdx given the current row, plus
// the prior-quadratic-form delta (new minus old) to add to the
// likelihood delta before the accept/reject test. Kernel 1 (independence
// sampler from the prior) always reports deltaPrior = 0 because the
// proposal density equals the prior, which cancels it out of the
// Metropolis-Hastings ratio.
type Propose func(rowIdx int, cur []float64) (candidate []float64, deltaPrior float64)

var acceptDraw = distuv.Uniform{Min: 0, Max: 1}

// Sweep runs one full pass over every row of phi, proposing via propose,
// evaluating via eval, and accepting with probability min(1, exp(-delta))
// (accept whenever delta < -log(draw)). Accepted rows are written back into
// phi in place and reported to sink.
func Sweep(phi *mat.Dense, propose Propose, eval RowEvaluator, sink Sink) (accepted int, err error) {
	n, p := phi.Dims()
	cur := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(cur, i, phi)

		curNegLogLik, _, err := eval(cur, i)
		if err != nil {
			return accepted, err
		}

		candidate, deltaPrior := propose(i, cur)
		newNegLogLik, pred, err := eval(candidate, i)
		if err != nil {
			return accepted, err
		}

		delta := (newNegLogLik - curNegLogLik) + deltaPrior
		draw := acceptDraw.Rand()
		if delta < -math.Log(draw) {
			phi.SetRow(i, candidate)
			accepted++
			if sink != nil {
				sink(i, pred)
			}
		}
	}
	return accepted, nil
}

// RunSweeps runs Sweep `sweeps` times in a row, as the burn-in schedule
// requires (20*nu[m] sweeps at iteration 0, nu[m] afterward).
func RunSweeps(phi *mat.Dense, propose Propose, eval RowEvaluator, sink Sink, sweeps int) (accepted int, err error) {
	for s := 0; s < sweeps; s++ {
		a, err := Sweep(phi, propose, eval, sink)
		if err != nil {
			return accepted, err
		}
		accepted += a
	}
	return accepted, nil
}

// PriorProposer builds kernel 1 (method=1): propose phi'_i ~ N(priorMean_i,
// gamma), masked element-wise by ue so a zero entry pins the coordinate at
// its prior mean.
func PriorProposer(priorMean *mat.Dense, gamma *mat.SymDense, ue *mat.Dense) (Propose, error) {
	_, p := priorMean.Dims()
	mu := make([]float64, p)
	dist, ok := distmv.NewNormal(mu, gamma, nil)
	if !ok {
		return nil, errNotPD
	}
	draw := make([]float64, p)
	return func(rowIdx int, cur []float64) ([]float64, float64) {
		dist.Rand(draw)
		candidate := make([]float64, p)
		for j := 0; j < p; j++ {
			mean := priorMean.At(rowIdx, j)
			if ue.At(rowIdx, j) == 0 {
				candidate[j] = mean
				continue
			}
			candidate[j] = mean + draw[j]
		}
		return candidate, 0
	}, nil
}

// RandomWalkProposer builds kernel 2 (method=2): phi'_i = phi_i + N(0,
// diag(gamma)*rmcmc), masked by ue, with the prior quadratic-form delta
// added to the likelihood delta at accept/reject time.
func RandomWalkProposer(priorMean *mat.Dense, gamma, invGamma *mat.SymDense, ue *mat.Dense, rmcmc float64) Propose {
	p := gamma.Symmetric()
	sigma := make([]float64, p)
	for j := 0; j < p; j++ {
		v := gamma.At(j, j) * rmcmc
		if v > 0 {
			sigma[j] = math.Sqrt(v)
		}
	}
	return func(rowIdx int, cur []float64) ([]float64, float64) {
		candidate := make([]float64, p)
		copy(candidate, cur)
		for j := 0; j < p; j++ {
			if ue.At(rowIdx, j) == 0 {
				continue
			}
			noise := distuv.Normal{Mu: 0, Sigma: sigma[j]}.Rand()
			candidate[j] = cur[j] + noise
		}
		mean := mat.Row(nil, rowIdx, priorMean)
		deltaPrior := quadFormDelta(candidate, cur, mean, invGamma)
		return candidate, deltaPrior
	}
}

// CoordinateProposer builds one coordinate's slice of kernel 3 (method=3):
// perturb only column k of the row, otherwise identical to the random-walk
// kernel's accept/reject. The driver calls this once per coordinate
// 0..nphi-1 within a single SAEM iteration's method-3 pass.
func CoordinateProposer(priorMean *mat.Dense, gamma, invGamma *mat.SymDense, ue *mat.Dense, rmcmc float64, k int) Propose {
	p := gamma.Symmetric()
	sigma := 0.0
	if v := gamma.At(k, k) * rmcmc; v > 0 {
		sigma = math.Sqrt(v)
	}
	return func(rowIdx int, cur []float64) ([]float64, float64) {
		candidate := make([]float64, p)
		copy(candidate, cur)
		if ue.At(rowIdx, k) != 0 {
			noise := distuv.Normal{Mu: 0, Sigma: sigma}.Rand()
			candidate[k] = cur[k] + noise
		}
		mean := mat.Row(nil, rowIdx, priorMean)
		deltaPrior := quadFormDelta(candidate, cur, mean, invGamma)
		return candidate, deltaPrior
	}
}

// quadFormDelta returns 0.5*(cand-mean)'IG(cand-mean) - 0.5*(cur-mean)'IG(cur-mean).
func quadFormDelta(cand, cur, mean []float64, invGamma *mat.SymDense) float64 {
	p := len(cand)
	dc := make([]float64, p)
	do := make([]float64, p)
	for j := 0; j < p; j++ {
		dc[j] = cand[j] - mean[j]
		do[j] = cur[j] - mean[j]
	}
	return 0.5*quadForm(dc, invGamma) - 0.5*quadForm(do, invGamma)
}

func quadForm(d []float64, m *mat.SymDense) float64 {
	v := mat.NewVecDense(len(d), d)
	var mv mat.VecDense
	mv.MulVec(m, v)
	return mat.Dot(v, &mv)
}

type staticError string

func (e staticError) Error() string { return string(e) }

const errNotPD staticError = "mcmc: covariance matrix is not positive-definite"
