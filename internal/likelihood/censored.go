// Package likelihood implements the per-observation contribution to the
// MCMC/statistics data-likelihood: the ordinary Gaussian term on the
// transformed scale, replaced by the appropriate censored log-probability
// when an observation is censored or Tobit-limited.
package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Censoring mirrors the per-observation cens flag: no censoring, or a
// right/left Tobit bound.
type Censoring int

const (
	None  Censoring = 0
	Right Censoring = 1
	Left  Censoring = -1
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// DYF computes one observation's contribution to the SAEM objective DYF:
// the ordinary Gaussian term 0.5*((yhat-fhat)/sigma)^2 + log(sigma) when
// cens is None, and the negative log-probability that the latent
// prediction lies in the censored region otherwise. limit is the Tobit
// bound (ignored when cens is None); math.Inf(-1) signals "no limit".
func DYF(yhat, fhat, sigma float64, cens Censoring, limit float64) float64 {
	if cens == None {
		z := (yhat - fhat) / sigma
		return 0.5*z*z + math.Log(sigma)
	}

	if isFinite(yhat) && isFinite(limit) && yhat != limit {
		// Interval censoring: both the reported value and the Tobit bound
		// are finite, so the event is that the latent prediction lies
		// between them.
		lo, hi := limit, yhat
		if cens == Left {
			lo, hi = yhat, limit
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		a := (lo - fhat) / sigma
		b := (hi - fhat) / sigma
		return -logCDFDiff(a, b) - math.Log(sigma)
	}

	switch cens {
	case Right:
		z := (limit - fhat) / sigma
		return -logCDF(z) - math.Log(sigma)
	case Left:
		z := (fhat - limit) / sigma
		return -logCDF(z) - math.Log(sigma)
	default:
		z := (yhat - fhat) / sigma
		return 0.5*z*z + math.Log(sigma)
	}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// logCDF returns log(Phi(z)) using the standard normal CDF.
func logCDF(z float64) float64 {
	p := stdNormal.CDF(z)
	if p <= 0 {
		return -700 // guards log(0); matches the sigma floor/cap order of magnitude
	}
	return math.Log(p)
}

// logCDFDiff returns log(Phi(b) - Phi(a)) for interval censoring, guarding
// against a numerically-zero difference.
func logCDFDiff(a, b float64) float64 {
	diff := stdNormal.CDF(b) - stdNormal.CDF(a)
	if diff <= 0 {
		return -700
	}
	return math.Log(diff)
}
