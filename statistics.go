package saem

import (
	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/residual"
	"github.com/pmxsaem/saem/internal/transform"
)

// updateStatistics blends the per-chain sufficient statistics (column means
// and phi'phi for each block, summed squared transformed residual per
// endpoint) into the running totals with the stochastic-approximation rule
// x <- x + pas[k]*(X/M - x).
func (e *estimator) updateStatistics(pas float64) {
	cfg := e.cfg
	M := float64(cfg.Nmc)

	if e.nphi1 > 0 {
		phi1 := extractCols(e.phiM, cfg.Ix1)
		sum1 := perSubjectChainSum(phi1, cfg.N, cfg.Nmc)
		var sum12 mat.Dense
		sum12.Mul(phi1.T(), phi1)
		blendMat(e.statphi11, sum1, M, pas)
		blendMat(e.statphi12, &sum12, M, pas)
	}

	if e.nphi0 > 0 {
		phi0 := extractCols(e.phiM, cfg.Ix0)
		sum0 := perSubjectChainSum(phi0, cfg.N, cfg.Nmc)
		var sum02 mat.Dense
		sum02.Mul(phi0.T(), phi0)
		blendMat(e.statphi01, sum0, M, pas)
		blendMat(e.statphi02, &sum02, M, pas)
	}

	e.updateResidualStatistics(pas)
}

// updateResidualStatistics computes statr[b], the per-endpoint sum of
// squared transformed residuals (divided by F when the model is
// proportional), using the cached fsave predictions so no re-solve
// happens here.
func (e *estimator) updateResidualStatistics(pas float64) {
	cfg := e.cfg
	sums := make([]float64, cfg.NEndpnt)

	for k := range cfg.Y {
		b := cfg.IxEndpnt[k]
		ep := cfg.Endpoints[b]
		spec := ep.Transform
		spec.Lambda = e.resParams[b].Lambda

		yhat, err := transform.T(cfg.Y[k], spec)
		if err != nil {
			continue
		}
		fhat, err := transform.T(e.fsave[k], spec)
		if err != nil {
			continue
		}
		diff := yhat - fhat

		switch residualStatKind(ep.Kind) {
		case statAdditive:
			sums[b] += diff * diff
		case statProportional:
			f := fhat
			if f < fFloorLocal {
				f = fFloorLocal
			}
			sums[b] += (diff * diff) / (f * f)
		default:
			// Structurally unreachable for the ten enumerated kinds; kept
			// as an explicit placeholder rather than silently folded away.
			sums[b] = 1
		}
	}

	for b := 0; b < cfg.NEndpnt; b++ {
		e.statrese[b] += pas * (sums[b] - e.statrese[b])
	}
}

const fFloorLocal = 1e-12

type residualStatClass int

const (
	statAdditive residualStatClass = iota
	statProportional
	statOther
)

func residualStatKind(k residual.Kind) residualStatClass {
	switch k {
	case residual.Add, residual.AddLam:
		return statAdditive
	case residual.Prop, residual.Pow, residual.AddProp, residual.AddPow,
		residual.PropLam, residual.PowLam, residual.AddPropLam, residual.AddPowLam:
		return statProportional
	default:
		return statOther
	}
}

// perSubjectChainSum sums phi's (N*M) x ncols rows over the M chains for
// each subject, returning an N x ncols matrix (phiM's row m*N+i belongs to
// chain m, subject i, per estimator.phiM's documented layout).
func perSubjectChainSum(phi *mat.Dense, n, m int) *mat.Dense {
	_, ncols := phi.Dims()
	out := mat.NewDense(n, ncols, nil)
	for chain := 0; chain < m; chain++ {
		for i := 0; i < n; i++ {
			row := chain*n + i
			for j := 0; j < ncols; j++ {
				out.Set(i, j, out.At(i, j)+phi.At(row, j))
			}
		}
	}
	return out
}

func blendMat(x, sum *mat.Dense, m, pas float64) {
	r, c := x.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			target := sum.At(i, j) / m
			x.Set(i, j, x.At(i, j)+pas*(target-x.At(i, j)))
		}
	}
}
