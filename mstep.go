package saem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/numeric"
	"github.com/pmxsaem/saem/internal/residual"
)

// mStepMean regresses the chain-averaged sufficient statistic statphi*1
// against the covariate design COV* to update Plambda, per coefficient
// group sharing one phi column, using the per-column normal-equations
// pattern grounded directly on the teacher's OLSEstimator.Estimate (see
// DESIGN.md for why this stands in for the CGamma/D/D2 weighting the
// source computes directly, with an equivalent per-column OLS).
func (e *estimator) mStepMean() error {
	cfg := e.cfg
	if e.nphi1 > 0 {
		updated, err := regressCoefficients(cfg.COV1, e.statphi11, cfg.CoefMap1, e.nlambda1, e.nphi1)
		if err != nil {
			return fmt.Errorf("saem: block-1 mean M-step: %w", err)
		}
		overlayFixed(updated, cfg.FixedIx1, cfg.Plambda1Init)
		e.plambda1 = updated
	}
	if e.nphi0 > 0 {
		updated, err := regressCoefficients(cfg.COV0, e.statphi01, cfg.CoefMap0, e.nlambda0, e.nphi0)
		if err != nil {
			return fmt.Errorf("saem: block-0 mean M-step: %w", err)
		}
		overlayFixed(updated, cfg.FixedIx0, cfg.Plambda0Init)
		e.plambda0 = updated
	}
	return nil
}

// regressCoefficients solves, independently for each phi column, the OLS
// problem cov[:,cols(j)] * beta ≈ statphi[:,j] and scatters beta back into
// a flat Plambda-shaped slice via coefMap.
func regressCoefficients(cov *mat.Dense, statphi *mat.Dense, coefMap []CoefEntry, nlambda, nphi int) ([]float64, error) {
	out := make([]float64, nlambda)

	byPhi := make(map[int][]CoefEntry)
	for _, c := range coefMap {
		byPhi[c.Phi] = append(byPhi[c.Phi], c)
	}

	n, _ := cov.Dims()
	for j := 0; j < nphi; j++ {
		entries := byPhi[j]
		if len(entries) == 0 {
			continue
		}
		x := mat.NewDense(n, len(entries), nil)
		for i := 0; i < n; i++ {
			for ci, c := range entries {
				x.Set(i, ci, cov.At(i, c.Cov))
			}
		}
		y := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			y.Set(i, 0, statphi.At(i, j))
		}

		var xtx mat.Dense
		xtx.Mul(x.T(), x)
		xtxSym := denseToSym(&xtx)

		var xty mat.Dense
		xty.Mul(x.T(), y)

		beta, err := numeric.SolveSPD(xtxSym, &xty)
		if err != nil {
			return nil, fmt.Errorf("regressing phi column %d: %w", j, err)
		}
		for ci, c := range entries {
			out[c.Lambda] = beta.At(ci, 0)
		}
	}
	return out, nil
}

// overlayFixed snaps frozen Plambda entries (fixedIx1/0) back to their
// initialization value, overriding whatever the M-step regression produced
// for those coordinates.
func overlayFixed(plambda []float64, fixedIx []int, init []float64) {
	for _, idx := range fixedIx {
		plambda[idx] = init[idx]
	}
}

// mStepCovariance forms G from the sum-of-squares decomposition, applies
// the simulated-annealing floor for the first NbSA iterations, the
// structure mask, the diagonal floor, the frozen-entry overlay, and the
// nb_correl diagonal-only window for block 1; block 0 instead decays
// geometrically after NiterPhi0.
func (e *estimator) mStepCovariance(mprior1, mprior0 *mat.Dense, iter int) {
	cfg := e.cfg

	if e.nphi1 > 0 {
		g := covarianceG(e.statphi11, e.statphi12, mprior1, cfg.N)

		next := mat.NewSymDense(e.nphi1, nil)
		for i := 0; i < e.nphi1; i++ {
			for j := i; j < e.nphi1; j++ {
				if i == j && iter < cfg.NbSA {
					floor := e.gamma1.At(i, i) * cfg.CoefSA
					next.SetSym(i, i, math.Max(floor, g.At(i, i)))
					continue
				}
				next.SetSym(i, j, g.At(i, j))
			}
		}

		if cfg.CovStruct1 != nil {
			next = numeric.MaskStruct(next, cfg.CovStruct1)
		}
		if len(cfg.Minv) == e.nphi1 {
			next = numeric.DiagFloor(next, cfg.Minv)
		}
		if cfg.Gamma2Phi1Fixed && iter > cfg.NbFixOmega && cfg.Gamma2Phi1FixedIx != nil {
			overlaySymFixed(next, cfg.Gamma2Phi1FixedIx, cfg.Gamma2Phi1FixedValues)
		}
		if iter <= cfg.NbCorrel {
			next = diagonalOnlySym(next)
		}
		e.gamma1 = next
	}

	if e.nphi0 > 0 {
		if iter <= cfg.NiterPhi0 {
			g0 := covarianceG(e.statphi01, e.statphi02, mprior0, cfg.N)
			e.gamma0 = diagonalOnlySym(denseToSym(g0))
			return
		}
		decayed := mat.NewSymDense(e.nphi0, nil)
		for i := 0; i < e.nphi0; i++ {
			decayed.SetSym(i, i, e.gamma0.At(i, i)*cfg.CoefPhi0)
		}
		e.gamma0 = decayed
	}
}

// covarianceG computes (statphi2 + mprior'mprior - statphi1'mprior -
// mprior'statphi1) / N, the sum-of-squares decomposition behind the
// covariance M-step.
func covarianceG(statphi1, statphi2, mprior *mat.Dense, n int) *mat.Dense {
	var mtm, s1tm, mts1 mat.Dense
	mtm.Mul(mprior.T(), mprior)
	s1tm.Mul(statphi1.T(), mprior)
	mts1.Mul(mprior.T(), statphi1)

	r, c := statphi2.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := statphi2.At(i, j) + mtm.At(i, j) - s1tm.At(i, j) - mts1.At(i, j)
			out.Set(i, j, v/float64(n))
		}
	}
	return out
}

func diagonalOnlySym(a *mat.SymDense) *mat.SymDense {
	n := a.Symmetric()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, a.At(i, i))
	}
	return out
}

func overlaySymFixed(a *mat.SymDense, mask *mat.Dense, values *mat.SymDense) {
	n := a.Symmetric()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if mask.At(i, j) != 0 {
				a.SetSym(i, j, values.At(i, j))
			}
		}
	}
}

func denseToSym(a *mat.Dense) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return out
}

// mStepResidual gathers, per endpoint, the cached (y, f) pairs from fsave,
// runs the residual-model optimizer, and moves toward its optimum with the
// step-size rule (snapping directly before NbFixResid, blending after).
// resFixed entries are overlaid at resValue once NbFixResid has passed.
func (e *estimator) mStepResidual(iter int, opt residual.Options) error {
	cfg := e.cfg
	burnedIn := iter >= cfg.NbFixResid

	for b, ep := range cfg.Endpoints {
		var ys, fs []float64
		for k := range cfg.Y {
			if cfg.IxEndpnt[k] != b {
				continue
			}
			ys = append(ys, cfg.Y[k])
			fs = append(fs, e.fsave[k])
		}
		if len(ys) == 0 {
			continue
		}

		free := ep.Free
		if iter > cfg.NbFixResid {
			free = effectiveFree(free, ep.Fixed)
		}

		ctx := residual.Context{
			Y: ys, F: fs,
			Yj: ep.Transform.Yj, Lo: ep.Transform.Lo, Hi: ep.Transform.Hi,
			PropT: ep.PropT, AdjustF: ep.AdjustF,
			LambdaRange: cfg.LambdaRange,
		}
		target, err := residual.Fit(ctx, ep.Kind, free, e.resParams[b], opt)
		if err != nil {
			return fmt.Errorf("saem: residual M-step for endpoint %d (%s): %w", b, ep.Kind, err)
		}
		next := residualStepSize(e.resParams[b], target, cfg.Pas[iter], burnedIn)
		if iter > cfg.NbFixResid {
			next = overlayResidualFixed(next, ep.Fixed, ep.Value)
		}
		e.resParams[b] = next
	}
	return nil
}

func effectiveFree(free, fixed residual.Free) residual.Free {
	if fixed.A {
		free.A = false
	}
	if fixed.B {
		free.B = false
	}
	if fixed.C {
		free.C = false
	}
	if fixed.Lambda {
		free.Lambda = false
	}
	return free
}

func overlayResidualFixed(p residual.Params, fixed residual.Free, value residual.Params) residual.Params {
	if fixed.A {
		p.A = value.A
	}
	if fixed.B {
		p.B = value.B
	}
	if fixed.C {
		p.C = value.C
	}
	if fixed.Lambda {
		p.Lambda = value.Lambda
	}
	return p
}

// residualStepSize is the step-size-weighted move toward the optimum:
// x <- x + pas[k]*(x* - x), applied component-wise after nb_fixResid
// burn-in; earlier iterations snap directly to the optimum.
func residualStepSize(cur, target residual.Params, pas float64, burnedIn bool) residual.Params {
	if !burnedIn {
		return target
	}
	return residual.Params{
		A:      cur.A + pas*(target.A-cur.A),
		B:      cur.B + pas*(target.B-cur.B),
		C:      cur.C + pas*(target.C-cur.C),
		Lambda: cur.Lambda + pas*(target.Lambda-cur.Lambda),
	}
}
