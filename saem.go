// Package saem implements the Stochastic Approximation Expectation-
// Maximization estimator for nonlinear mixed-effects models: a coupled
// Metropolis-Hastings sampler over individual parameters, a
// stochastic-approximation update of sufficient statistics, an M-step for
// regression coefficients and random-effect covariance, a per-endpoint
// residual-error-model optimizer, censored-observation handling, and
// Fisher-information accumulation. The external ODE/nonlinear predictor is
// injected through Config.Solver, kept outside this package's scope.
package saem

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/likelihood"
	"github.com/pmxsaem/saem/internal/mcmc"
	"github.com/pmxsaem/saem/internal/numeric"
	"github.com/pmxsaem/saem/internal/predict"
	"github.com/pmxsaem/saem/internal/residual"
	"github.com/pmxsaem/saem/internal/transform"
)

// residualOptions mirrors the nested optimizer's tuning knobs out of cfg.
func residualOptions(cfg *Config) residual.Options {
	return residual.Options{
		Type:        cfg.OptType,
		Tol:         cfg.Tol,
		ItMax:       cfg.Itmax,
		SearchBound: cfg.SearchBound,
	}
}

// Fit runs the full SAEM iteration loop to completion, or until ctx is
// cancelled, returning the best Result accumulated so far.
func Fit(ctx context.Context, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Distribution.Validate(); err != nil {
		fmt.Printf("saem: %v; returning empty result without iterating\n", err)
		return &Result{}, nil
	}

	e, err := newEstimator(cfg)
	if err != nil {
		return nil, err
	}
	defer e.close()

	idxByIDM := buildSubjectIndex(cfg)
	ad := &predict.Adapter{
		Solver:          cfg.Solver,
		MaxOdeRecalc:    cfg.MaxOdeRecalc,
		OdeRecalcFactor: cfg.OdeRecalcFactor,
	}
	opt := residualOptions(cfg)

	nphi := cfg.NPhi()
	iter := 0
	for ; iter < cfg.Niter; iter++ {
		if err := ctx.Err(); err != nil {
			break
		}
		e.iter = iter

		mprior1, mprior0 := e.priorMeans()
		mean := e.combinedPriorMean(mprior1, mprior0)
		gamma, invGamma, err := e.combinedGamma()
		if err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: building combined covariance: %w", iter, err)
		}
		gammaMCMC := jitterSym(gamma, 1e-10)
		invGammaMCMC, err := numeric.SymInverse(gammaMCMC)
		if err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: inverting jittered covariance: %w", iter, err)
		}

		eval := e.rowEvaluator(ad, idxByIDM)
		sink := mcmc.Sink(func(rowIdx int, pred []float64) {
			for r, oi := range idxByIDM[rowIdx] {
				e.fsave[oi] = pred[r]
			}
		})

		if err := e.runMCMC(mean, gammaMCMC, invGammaMCMC, nphi, iter, eval, sink); err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: MCMC sweep: %w", iter, err)
		}

		e.updateStatistics(cfg.Pas[iter])

		if err := e.mStepMean(); err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: mean M-step: %w", iter, err)
		}

		mprior1, mprior0 = e.priorMeans()
		e.mStepCovariance(mprior1, mprior0, iter)

		if err := e.mStepResidual(iter, opt); err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: residual M-step: %w", iter, err)
		}

		_, invGammaFisher, err := e.combinedGamma()
		if err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: covariance for Fisher step: %w", iter, err)
		}
		if err := e.updateFisher(e.plambdaNegLogLikForChain(invGammaFisher), cfg.Pash[iter]); err != nil {
			return e.result(iter), fmt.Errorf("saem: iteration %d: Fisher update: %w", iter, err)
		}

		e.recordHistory(iter)
		e.dumpPhi()

		if cfg.Print > 0 && iter%cfg.Print == 0 {
			fmt.Printf("saem: iteration %d/%d\n", iter, cfg.Niter)
		}
	}

	return e.result(iter), nil
}

// runMCMC executes the three-kernel sweep, once per chain, with the
// burn-in schedule 20*nu[x] at iteration 0 and nu[x] afterward.
func (e *estimator) runMCMC(mean *mat.Dense, gamma, invGamma *mat.SymDense, nphi, iter int, eval mcmc.RowEvaluator, sink mcmc.Sink) error {
	cfg := e.cfg
	sweepsFor := func(nu int) int {
		if iter == 0 {
			return 20 * nu
		}
		return nu
	}

	prior, err := mcmc.PriorProposer(mean, gamma, cfg.Ue)
	if err != nil {
		return err
	}
	rw := mcmc.RandomWalkProposer(mean, gamma, invGamma, cfg.Ue, cfg.Rmcmc)

	for m := 0; m < cfg.Nmc; m++ {
		sub, ok := e.phiM.Slice(m*cfg.N, (m+1)*cfg.N, 0, nphi).(*mat.Dense)
		if !ok {
			return fmt.Errorf("saem: chain %d: phi slice did not produce a *mat.Dense view", m)
		}

		if _, err := mcmc.RunSweeps(sub, prior, eval, sink, sweepsFor(cfg.Nu[0])); err != nil {
			return fmt.Errorf("chain %d kernel 1: %w", m, err)
		}
		if _, err := mcmc.RunSweeps(sub, rw, eval, sink, sweepsFor(cfg.Nu[1])); err != nil {
			return fmt.Errorf("chain %d kernel 2: %w", m, err)
		}

		sweeps3 := sweepsFor(cfg.Nu[2])
		for s := 0; s < sweeps3; s++ {
			for k := 0; k < nphi; k++ {
				coord := mcmc.CoordinateProposer(mean, gamma, invGamma, cfg.Ue, cfg.Rmcmc, k)
				if _, err := mcmc.Sweep(sub, coord, eval, sink); err != nil {
					return fmt.Errorf("chain %d kernel 3 coordinate %d: %w", m, k, err)
				}
			}
		}
	}
	return nil
}

// rowEvaluator builds the mcmc.RowEvaluator that drives one subject's
// candidate phi row through the external predictor and the data
// likelihood: Gaussian endpoints go through the transform/residual-sigma/
// censoring pipeline; Poisson/Bernoulli endpoints use likelihood.NegLogLik
// directly, since those distributions have no residual-error model or
// censoring correction of their own.
func (e *estimator) rowEvaluator(ad *predict.Adapter, idxByIDM [][]int) mcmc.RowEvaluator {
	cfg := e.cfg
	_, w := cfg.Evt.Dims()

	return func(row []float64, rowIdx int) (float64, []float64, error) {
		obs := idxByIDM[rowIdx]
		k := len(obs)
		if k == 0 {
			return 0, nil, nil
		}

		phi := mat.NewDense(k, len(row), nil)
		evt := mat.NewDense(k, w, nil)
		for r, oi := range obs {
			phi.SetRow(r, row)
			evt.SetRow(r, mat.Row(nil, oi, cfg.Evt))
		}

		pred, err := ad.Predict(phi, evt, cfg.SolverOptions)
		if err != nil {
			return 0, nil, err
		}

		total := 0.0
		for r, oi := range obs {
			b := cfg.IxEndpnt[oi]
			ep := cfg.Endpoints[b]
			f := pred.F[r]

			if cfg.Distribution != likelihood.Gaussian {
				nll, err := likelihood.NegLogLik(cfg.Distribution, cfg.Y[oi], f)
				if err != nil {
					return 0, nil, err
				}
				total += nll
				continue
			}

			spec := ep.Transform
			spec.Lambda = e.resParams[b].Lambda
			yhat, err := transform.T(cfg.Y[oi], spec)
			if err != nil {
				return 0, nil, err
			}
			fhat, err := transform.T(f, spec)
			if err != nil {
				return 0, nil, err
			}
			fval := residual.AdjustedF(fhat, f, ep.PropT, ep.AdjustF)
			sigma, err := residual.Sigma(ep.Kind, e.resParams[b], fval)
			if err != nil {
				return 0, nil, err
			}

			var cens likelihood.Censoring
			limit := cfg.Limit[oi]
			if cfg.Cens != nil {
				cens = cfg.Cens[oi]
			}
			total += likelihood.DYF(yhat, fhat, sigma, cens, limit)
		}
		return total, pred.F, nil
	}
}

// plambdaNegLogLikForChain builds the Fisher step's finite-difference
// target, one closure per chain: the phi-prior contribution
// sum_i 0.5*(phi_i - mean_i(theta))'*invGamma*(phi_i - mean_i(theta)) over
// that chain's own current draw, the only place Plambda enters the joint
// likelihood (see DESIGN.md). Each chain gets its own closure so
// updateFisher can accumulate per-chain score/observed-information
// surrogates instead of the population total repeated once per chain.
func (e *estimator) plambdaNegLogLikForChain(invGamma *mat.SymDense) ChainNegLogLikFunc {
	cfg := e.cfg
	nphi := cfg.NPhi()
	return func(chain int) NegLogLikFunc {
		return func(theta []float64) (float64, error) {
			plambda1 := theta[:e.nlambda1]
			plambda0 := theta[e.nlambda1:]

			var mprior1, mprior0 *mat.Dense
			if e.nphi1 > 0 {
				mcov1 := buildMCOV(plambda1, cfg.CoefMap1, e.nlambda1, e.nphi1)
				mprior1 = mat.NewDense(cfg.N, e.nphi1, nil)
				mprior1.Mul(cfg.COV1, mcov1)
			} else {
				mprior1 = mat.NewDense(cfg.N, 0, nil)
			}
			if e.nphi0 > 0 {
				mcov0 := buildMCOV(plambda0, cfg.CoefMap0, e.nlambda0, e.nphi0)
				mprior0 = mat.NewDense(cfg.N, e.nphi0, nil)
				mprior0.Mul(cfg.COV0, mcov0)
			} else {
				mprior0 = mat.NewDense(cfg.N, 0, nil)
			}

			mean := e.combinedPriorMean(mprior1, mprior0)
			diff := make([]float64, nphi)
			total := 0.0
			for i := 0; i < cfg.N; i++ {
				row := chain*cfg.N + i
				for j := 0; j < nphi; j++ {
					diff[j] = e.phiM.At(row, j) - mean.At(i, j)
				}
				total += 0.5 * quadFormVec(diff, invGamma)
			}
			return total, nil
		}
	}
}

func quadFormVec(d []float64, m *mat.SymDense) float64 {
	v := mat.NewVecDense(len(d), d)
	var mv mat.VecDense
	mv.MulVec(m, v)
	return mat.Dot(v, &mv)
}

// combinedPriorMean scatters the block-1 and block-0 prior means into their
// Ix1/Ix0 columns of a single N x nphi matrix, the shape the MCMC kernels
// operate on.
func (e *estimator) combinedPriorMean(mprior1, mprior0 *mat.Dense) *mat.Dense {
	cfg := e.cfg
	out := mat.NewDense(cfg.N, cfg.NPhi(), nil)
	for j, col := range cfg.Ix1 {
		for i := 0; i < cfg.N; i++ {
			out.Set(i, col, mprior1.At(i, j))
		}
	}
	for j, col := range cfg.Ix0 {
		for i := 0; i < cfg.N; i++ {
			out.Set(i, col, mprior0.At(i, j))
		}
	}
	return out
}

// combinedGamma assembles the block-diagonal nphi x nphi covariance from
// Gamma1/Gamma0 and its inverse, the shape the MCMC kernels need to sample
// and evaluate the prior quadratic form over the full phi vector.
func (e *estimator) combinedGamma() (*mat.SymDense, *mat.SymDense, error) {
	cfg := e.cfg
	nphi := cfg.NPhi()
	g := mat.NewSymDense(nphi, nil)

	setBlock := func(ix []int, block *mat.SymDense) {
		for a, ca := range ix {
			for b, cb := range ix {
				if ca > cb {
					continue
				}
				g.SetSym(ca, cb, block.At(a, b))
			}
		}
	}
	if e.nphi1 > 0 {
		setBlock(cfg.Ix1, e.gamma1)
	}
	if e.nphi0 > 0 {
		setBlock(cfg.Ix0, e.gamma0)
	}

	inv, err := numeric.SymInverse(g)
	if err != nil {
		return nil, nil, err
	}
	return g, inv, nil
}

// jitterSym adds eps to the diagonal, guarding the independence sampler's
// covariance against the zero/near-singular blocks a fixed-mean (nphi0)
// column with no sampled variance would otherwise produce.
func jitterSym(a *mat.SymDense, eps float64) *mat.SymDense {
	n := a.Symmetric()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := a.At(i, j)
			if i == j {
				v += eps
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}

// buildSubjectIndex groups observation indices by subject, in dataset
// order, for the RowEvaluator's per-subject solver calls.
func buildSubjectIndex(cfg *Config) [][]int {
	out := make([][]int, cfg.N)
	for k, id := range cfg.IxIDM {
		out[id] = append(out[id], k)
	}
	return out
}

// dumpPhi appends the current phiM to the chain dump file, one
// space-separated line per phiM row (N*Nmc lines per iteration), when
// cfg.PhiMFile is configured for chain diagnostics.
func (e *estimator) dumpPhi() {
	if e.dumpFile == nil {
		return
	}
	r, c := e.phiM.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if j > 0 {
				fmt.Fprint(e.dumpFile, " ")
			}
			fmt.Fprintf(e.dumpFile, "%g", e.phiM.At(i, j))
		}
		fmt.Fprintln(e.dumpFile)
	}
}

// result assembles the Result the driver returns on every exit path,
// including early cancellation.
func (e *estimator) result(iterationsDone int) *Result {
	cfg := e.cfg
	mprior1, mprior0 := e.priorMeans()
	mean := e.combinedPriorMean(mprior1, mprior0)

	mpost := posteriorMean(e.phiM, cfg.N, cfg.Nmc)
	cpost := posteriorVar(e.phiM, mpost, cfg.N, cfg.Nmc)
	eta := etaMatrix(mpost, mean, cfg.Ix1, cfg.Ue)

	resMat := mat.NewDense(cfg.NEndpnt, 4, nil)
	transMat := mat.NewDense(cfg.NEndpnt, 4, nil)
	for b, ep := range cfg.Endpoints {
		p := e.resParams[b]
		resMat.SetRow(b, []float64{p.A, p.B, p.C, p.Lambda})
		transMat.SetRow(b, []float64{ep.Transform.Lambda, float64(ep.Transform.Yj), ep.Transform.Lo, ep.Transform.Hi})
	}

	return &Result{
		Plambda:        e.combinedPlambda(),
		Gamma1:         e.gamma1,
		MpriorPhi:      mean,
		MpostPhi:       mpost,
		CpostPhi:       cpost,
		Eta:            eta,
		Ha:             e.ha,
		Hb:             e.hb,
		L:              e.l,
		ResMat:         resMat,
		TransMat:       transMat,
		ResInfo:        e.resParams,
		ParHist:        e.parHist,
		IterationsDone: iterationsDone,
	}
}

func posteriorMean(phi *mat.Dense, n, m int) *mat.Dense {
	_, p := phi.Dims()
	sum := perSubjectChainSum(phi, n, m)
	out := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			out.Set(i, j, sum.At(i, j)/float64(m))
		}
	}
	return out
}

func posteriorVar(phi, mean *mat.Dense, n, m int) *mat.Dense {
	_, p := phi.Dims()
	out := mat.NewDense(n, p, nil)
	for chain := 0; chain < m; chain++ {
		for i := 0; i < n; i++ {
			row := chain*n + i
			for j := 0; j < p; j++ {
				d := phi.At(row, j) - mean.At(i, j)
				out.Set(i, j, out.At(i, j)+d*d)
			}
		}
	}
	if m > 1 {
		out.Scale(1/float64(m-1), out)
	}
	return out
}

// etaMatrix returns mpost[:,Ix1] - mprior1, masked by ue so a pinned
// coordinate reports exactly 0.
func etaMatrix(mpost, mprior *mat.Dense, ix1 []int, ue *mat.Dense) *mat.Dense {
	n, _ := mpost.Dims()
	out := mat.NewDense(n, len(ix1), nil)
	for j, col := range ix1 {
		for i := 0; i < n; i++ {
			if ue.At(i, col) == 0 {
				continue
			}
			out.Set(i, j, mpost.At(i, col)-mprior.At(i, col))
		}
	}
	return out
}
