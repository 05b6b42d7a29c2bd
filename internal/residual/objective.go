package residual

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/pmxsaem/saem/internal/transform"
)

// Params holds the (up to) four residual-error scalars, named after the
// source's ares, bres, cres, lres fields.
type Params struct {
	A, B, C, Lambda float64
}

// Free marks which of the four scalars are estimated this call; a false
// entry pins the corresponding Params field at its input value, so
// freezing a scalar reduces the residual optimizer's search dimensionality
// by one.
type Free struct {
	A, B, C, Lambda bool
}

// nFree reports how many of the structurally-active scalars for kind are
// also marked free.
func (f Free) nFree(d descriptor) int {
	n := 0
	if d.hasA && f.A {
		n++
	}
	if d.hasB && f.B {
		n++
	}
	if d.hasC && f.C {
		n++
	}
	if d.hasLambda && f.Lambda {
		n++
	}
	return n
}

// Context bundles one endpoint's observation/prediction pair and transform
// configuration; it is immutable for the duration of one Fit call, so the
// objective closures built from it can be shared freely across the
// optimizer's evaluations.
type Context struct {
	Y, F []float64 // raw observation and prediction vectors

	Yj          transform.Kind
	Lo, Hi      float64 // bounds for the *Bounded transform kinds
	PropT       bool    // F(f̂) uses the transformed prediction, truncated at a floor
	AdjustF     bool    // replace f=0 by 1 in the untransformed F(f̂) branch
	LambdaRange float64 // R in ToLambda's (-R, R) bijection
}

// Options tunes the optimizer, mirroring the estimator's optimizer-tuning
// configuration fields.
type Options struct {
	Type        int // 1 = Nelder-Mead only, 2 = bounded 1-D with Nelder-Mead fallback on NaN
	Tol         float64
	ItMax       int
	SearchBound float64 // half-width of the encoded-parameter search interval
}

const (
	sigmaFloor = 1e-200
	sigmaCap   = 1e300
	fFloor     = 1e-12
)

// Fit estimates the free scalars of kind's residual model against ctx,
// holding frozen scalars at their init value. It returns the updated
// Params (frozen fields copied through unchanged).
func Fit(ctx Context, kind Kind, free Free, init Params, opt Options) (Params, error) {
	d, err := descriptorFor(kind)
	if err != nil {
		return init, err
	}

	order := freeOrder(d, free)
	if len(order) == 0 {
		return init, nil
	}

	obj := buildObjective(ctx, d, init, order)

	bound := opt.SearchBound
	if bound <= 0 {
		bound = 1e3
	}

	if len(order) == 1 && opt.Type != 1 {
		x0 := encodeComponent(order[0], init, ctx.LambdaRange)
		xStar, fStar := goldenSectionMinimize(obj, -bound, bound, x0, opt.Tol, opt.ItMax)
		if !math.IsNaN(fStar) {
			return decodeResult(init, order, []float64{xStar}, ctx.LambdaRange), nil
		}
		// Fall back to Nelder-Mead on the same single coordinate.
	}

	init0 := make([]float64, len(order))
	for i, comp := range order {
		init0[i] = encodeComponent(comp, init, ctx.LambdaRange)
	}

	method := &optimize.NelderMead{
		Reflection:  1.0,
		Expansion:   2.0,
		Contraction: 0.5,
	}
	itMax := opt.ItMax
	if itMax <= 0 {
		itMax = 200
	}
	settings := &optimize.Settings{
		MajorIterations: itMax * len(order),
		Converger: &optimize.FunctionConverge{
			Relative:   opt.Tol,
			Iterations: 50,
		},
	}

	res, err := optimize.Minimize(optimize.Problem{Func: obj}, init0, settings, method)
	if err != nil && res == nil {
		return init, err
	}
	if res == nil || hasNaN(res.X) {
		return init, nil
	}
	return decodeResult(init, order, res.X, ctx.LambdaRange), nil
}

// Sigma evaluates kind's residual-error standard deviation at f, the
// already floor/adjust-handled prediction AdjustedF produces. It is the
// exported form of sigmaOf, for callers outside this package that need the
// same formula the optimizer's objective uses, chiefly the MCMC
// data-likelihood evaluator.
func Sigma(k Kind, p Params, f float64) (float64, error) {
	d, err := descriptorFor(k)
	if err != nil {
		return 0, err
	}
	return sigmaOf(d, p, f), nil
}

// AdjustedF applies the same F(f̂) floor/zero-substitution rule
// buildObjective's fOf helper uses, so callers outside this package agree
// with the optimizer on what "f" means for a given endpoint.
func AdjustedF(fhat, fraw float64, propT, adjustF bool) float64 {
	if propT {
		if fhat < fFloor {
			return fFloor
		}
		return fhat
	}
	if adjustF && fraw == 0 {
		return 1
	}
	return fraw
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// component identifies one of the four residual scalars in a fixed
// canonical order (a, b, c, lambda).
type component int

const (
	compA component = iota
	compB
	compC
	compLambda
)

func freeOrder(d descriptor, f Free) []component {
	var order []component
	if d.hasA && f.A {
		order = append(order, compA)
	}
	if d.hasB && f.B {
		order = append(order, compB)
	}
	if d.hasC && f.C {
		order = append(order, compC)
	}
	if d.hasLambda && f.Lambda {
		order = append(order, compLambda)
	}
	return order
}

func encodeComponent(c component, p Params, lambdaRange float64) float64 {
	switch c {
	case compA:
		return math.Sqrt(math.Max(p.A, 0))
	case compB:
		return math.Sqrt(math.Max(p.B, 0))
	case compC:
		return math.Sqrt(math.Max(p.C, 0))
	case compLambda:
		return transform.FromLambda(clampOpen(p.Lambda, lambdaRange), lambdaRange)
	default:
		return 0
	}
}

func clampOpen(v, r float64) float64 {
	bound := 0.99 * r
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// decodeResult applies the decoded free components onto a copy of init,
// leaving frozen fields untouched.
func decodeResult(init Params, order []component, x []float64, lambdaRange float64) Params {
	out := init
	for i, c := range order {
		switch c {
		case compA:
			out.A = x[i] * x[i]
		case compB:
			out.B = x[i] * x[i]
		case compC:
			out.C = x[i] * x[i]
		case compLambda:
			out.Lambda = transform.ToLambda(x[i], lambdaRange)
		}
	}
	return out
}

// buildObjective returns the closure consumed by the optimizer: given an
// encoded free-parameter vector, decode it onto init, compute sigma and the
// transformed residual at every observation, and return
// sum((yhat-fhat)^2/sigma^2 + 2*log(sigma)).
func buildObjective(ctx Context, d descriptor, init Params, order []component) func([]float64) float64 {
	return func(x []float64) float64 {
		p := decodeResult(init, order, x, ctx.LambdaRange)

		spec := transform.Spec{Lambda: p.Lambda, Yj: ctx.Yj, Lo: ctx.Lo, Hi: ctx.Hi}

		total := 0.0
		for i := range ctx.Y {
			yhat, err := transform.T(ctx.Y[i], spec)
			if err != nil {
				return math.NaN()
			}
			fhat, err := transform.T(ctx.F[i], spec)
			if err != nil {
				return math.NaN()
			}

			fval := fOf(ctx, fhat, i)
			sigma := sigmaOf(d, p, fval)

			diff := (yhat - fhat) / sigma
			total += diff*diff + 2*math.Log(sigma)
		}
		return total
	}
}

// fOf implements F(f̂): the transformed prediction (floored) when PropT is
// set, else the raw prediction (with 0 replaced by 1 when AdjustF keeps
// proportional error well-defined at f=0).
func fOf(ctx Context, fhat float64, i int) float64 {
	if ctx.PropT {
		if fhat < fFloor {
			return fFloor
		}
		return fhat
	}
	f := ctx.F[i]
	if ctx.AdjustF && f == 0 {
		return 1
	}
	return f
}

// sigmaOf evaluates the standard deviation formula for kind's active
// components, clamped to [sigmaFloor, sigmaCap].
func sigmaOf(d descriptor, p Params, f float64) float64 {
	var s float64
	switch {
	case d.hasA && d.hasB && d.hasC:
		s = combineAB(d.combine, p.A, p.B*powSafe(f, p.C))
	case d.hasA && d.hasB:
		s = combineAB(d.combine, p.A, p.B*f)
	case d.hasB && d.hasC:
		s = p.B * powSafe(f, p.C)
	case d.hasA:
		s = p.A
	case d.hasB:
		s = p.B * f
	default:
		s = 1 // no sigma-defining component active: structurally unreachable for the ten kinds above
	}
	if s < sigmaFloor {
		s = sigmaFloor
	}
	if s > sigmaCap {
		s = sigmaCap
	}
	return s
}

func powSafe(f, c float64) float64 {
	if f <= 0 {
		return 0
	}
	return math.Pow(f, c)
}

// combineAB implements the add+prop/add+pow sigma, unified onto the
// combined-1 (additive) form per DESIGN.md's resolution of the add+prop
// formula disagreement. combined2 yields the quadrature form, but no Kind
// in the descriptor table selects it; every other value, noCombine
// included, yields a + b*F.
func combineAB(c combine, a, bF float64) float64 {
	if c == combined2 {
		return math.Sqrt(a*a + bF*bF)
	}
	return a + bF
}
