package likelihood

import (
	"fmt"
	"math"
)

// Distribution selects the observation-level likelihood model: 1=Gaussian,
// 2=Poisson, 3=Bernoulli. The continuous-residual machinery above (DYF, the
// residual-model optimizer) applies only to Gaussian; Poisson/Bernoulli
// endpoints bypass the residual model entirely and contribute their own
// discrete log-likelihood to the MCMC accept/reject step.
type Distribution int

const (
	Gaussian Distribution = 1
	Poisson  Distribution = 2
	Bernoulli Distribution = 3
)

// Validate reports an unknown distribution tag; callers that want to treat
// this as a hard configuration error can fail fast on it before entering
// the iteration loop.
func (d Distribution) Validate() error {
	switch d {
	case Gaussian, Poisson, Bernoulli:
		return nil
	default:
		return fmt.Errorf("likelihood: unknown distribution tag %d", int(d))
	}
}

// NegLogLik returns -log p(y | f) for the discrete distributions, where f
// is the individual prediction, already on its natural scale since no
// power-transform/residual model applies to Poisson/Bernoulli endpoints.
func NegLogLik(d Distribution, y, f float64) (float64, error) {
	switch d {
	case Poisson:
		if f <= 0 {
			return 0, fmt.Errorf("likelihood: poisson rate must be positive, got %v", f)
		}
		return f - y*math.Log(f) + logFactorial(y), nil
	case Bernoulli:
		p := f
		if p <= 0 {
			p = 1e-12
		}
		if p >= 1 {
			p = 1 - 1e-12
		}
		if y >= 0.5 {
			return -math.Log(p), nil
		}
		return -math.Log(1 - p), nil
	default:
		return 0, fmt.Errorf("likelihood: NegLogLik only supports discrete distributions, got %d", int(d))
	}
}

// logFactorial computes log(y!) as math.Lgamma(y+1), valid for the
// non-negative integer-valued counts Poisson endpoints carry.
func logFactorial(y float64) float64 {
	v, _ := math.Lgamma(y + 1)
	return v
}
