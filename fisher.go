package saem

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NegLogLikFunc evaluates a negative log-likelihood contribution at a
// candidate (Plambda1 ++ Plambda0) vector, holding phi fixed.
type NegLogLikFunc func(theta []float64) (float64, error)

// ChainNegLogLikFunc returns the NegLogLikFunc restricted to one MCMC
// chain's current phi draw, so updateFisher can accumulate each chain's own
// score and observed-information surrogate separately rather than the
// population total repeated Nmc times.
type ChainNegLogLikFunc func(chain int) NegLogLikFunc

const fdEps = 1e-4

// updateFisher forms DDa = (D1/M)(D1/M)' - D11/M - D2/M and DDb = -D11/M -
// D2/M from per-chain score/observed-information surrogates, then blends L,
// Ha, Hb with pash. The original estimator derives d1logk/d2logk analytically
// from the ODE sensitivity equations; without that solver's adjoint this
// approximates them with central finite differences of each chain's own
// negLogLikAt (see DESIGN.md), which costs O(nparam) extra likelihood
// evaluations per chain per iteration.
func (e *estimator) updateFisher(negLogLikForChain ChainNegLogLikFunc, pash float64) error {
	nparam := e.nlambda1 + e.nlambda0
	if nparam == 0 {
		return nil
	}

	theta := e.combinedPlambda()
	m := float64(e.cfg.Nmc)

	d1 := make([]float64, nparam)
	d11 := mat.NewDense(nparam, nparam, nil)
	d2diag := make([]float64, nparam)

	grad := make([]float64, nparam)
	for c := 0; c < e.cfg.Nmc; c++ {
		negLogLikAt := negLogLikForChain(c)
		if err := fdGradient(negLogLikAt, theta, grad); err != nil {
			return err
		}
		for i := 0; i < nparam; i++ {
			d1[i] += grad[i]
			for j := 0; j < nparam; j++ {
				d11.Set(i, j, d11.At(i, j)+grad[i]*grad[j])
			}
		}
		hess, err := fdHessianDiag(negLogLikAt, theta)
		if err != nil {
			return err
		}
		for i := 0; i < nparam; i++ {
			d2diag[i] += hess[i]
		}
	}

	for i := 0; i < nparam; i++ {
		d1m := d1[i] / m
		e.l[i] += pash * (d1m - e.l[i])
		for j := 0; j < nparam; j++ {
			d1jm := d1[j] / m
			dda := d1m*d1jm - d11.At(i, j)/m
			ddb := -d11.At(i, j) / m
			if i == j {
				dda -= d2diag[i] / m
				ddb -= d2diag[i] / m
			}
			e.ha.Set(i, j, e.ha.At(i, j)+pash*(dda-e.ha.At(i, j)))
			e.hb.Set(i, j, e.hb.At(i, j)+pash*(ddb-e.hb.At(i, j)))
		}
	}
	return nil
}

func fdStep(v float64) float64 {
	return fdEps * (1 + math.Abs(v))
}

func fdGradient(f NegLogLikFunc, theta, out []float64) error {
	work := append([]float64(nil), theta...)
	for i := range theta {
		h := fdStep(theta[i])
		work[i] = theta[i] + h
		fp, err := f(work)
		if err != nil {
			return err
		}
		work[i] = theta[i] - h
		fm, err := f(work)
		if err != nil {
			return err
		}
		work[i] = theta[i]
		out[i] = (fp - fm) / (2 * h)
	}
	return nil
}

func fdHessianDiag(f NegLogLikFunc, theta []float64) ([]float64, error) {
	out := make([]float64, len(theta))
	work := append([]float64(nil), theta...)
	f0, err := f(theta)
	if err != nil {
		return nil, err
	}
	for i := range theta {
		h := fdStep(theta[i])
		work[i] = theta[i] + h
		fp, err := f(work)
		if err != nil {
			return nil, err
		}
		work[i] = theta[i] - h
		fm, err := f(work)
		if err != nil {
			return nil, err
		}
		work[i] = theta[i]
		out[i] = (fp - 2*f0 + fm) / (h * h)
	}
	return out, nil
}
