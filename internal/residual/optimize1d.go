package residual

import "math"

// invPhi is 1/golden ratio, the standard contraction factor for a
// golden-section search.
const invPhi = 0.6180339887498949

// goldenSectionMinimize bounds-minimizes f over [lo, hi], seeded near x0 so
// the search starts from the current iterate rather than the interval
// midpoint, and returns (argmin, f(argmin)). This is the bounded 1-D
// minimizer used when the residual optimizer has exactly one free
// parameter; see DESIGN.md for why this stays hand-rolled instead of
// gonum/optimize.Brent (Brent brackets by expanding outward from Min/Max
// rather than clamping to them, so it cannot guarantee the iterate stays
// inside the encoded-parameter search interval the way this routine does).
func goldenSectionMinimize(f func([]float64) float64, lo, hi, x0, tol float64, itMax int) (float64, float64) {
	if itMax <= 0 {
		itMax = 200
	}
	if tol <= 0 {
		tol = 1e-8
	}

	eval := func(x float64) float64 { return f([]float64{x}) }

	// Keep the search interval centered on x0 when x0 already lies inside
	// [lo, hi]; otherwise fall back to the full interval.
	if x0 > lo && x0 < hi {
		width := hi - lo
		lo = math.Max(lo, x0-width/4)
		hi = math.Min(hi, x0+width/4)
	}

	a, b := lo, hi
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := eval(c), eval(d)

	for i := 0; i < itMax && (b-a) > tol; i++ {
		if math.IsNaN(fc) || math.IsNaN(fd) {
			return math.NaN(), math.NaN()
		}
		if fc < fd {
			b = d
			d = c
			fd = fc
			c = b - invPhi*(b-a)
			fc = eval(c)
		} else {
			a = c
			c = d
			fc = fd
			d = a + invPhi*(b-a)
			fd = eval(d)
		}
	}

	x := (a + b) / 2
	return x, eval(x)
}
