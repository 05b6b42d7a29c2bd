// Package numeric collects the dense-matrix helpers the SAEM estimator
// needs on top of gonum/mat: symmetric inversion with an SVD fallback,
// an SPD solve, element-wise masking and diagonal flooring. The MCMC
// kernels' random draws live in internal/mcmc, not here.
package numeric

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SymInverse inverts a symmetric positive-(semi)definite matrix via
// Cholesky, falling back to an SVD-based pseudoinverse when the Cholesky
// factorization fails, the same normal-equations-then-SVD pattern the
// teacher's OLSEstimator.Estimate uses for X'X.
func SymInverse(a *mat.SymDense) (*mat.SymDense, error) {
	n := a.Symmetric()

	var chol mat.Cholesky
	if chol.Factorize(a) {
		id := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			id.Set(i, i, 1)
		}
		var inv mat.Dense
		if err := chol.SolveTo(&inv, id); err == nil {
			return symmetrize(&inv, n), nil
		}
	}

	svd := mat.SVD{U: mat.SVDFull, V: mat.SVDFull}
	if !svd.Factorize(a) {
		return nil, fmt.Errorf("numeric: SVD factorization failed for %dx%d matrix", n, n)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)

	const tol = 1e-12
	data := make([]float64, n*n)
	out := mat.NewDense(n, n, data)
	for k := 0; k < len(vals); k++ {
		if vals[k] <= tol {
			continue
		}
		inv := 1.0 / vals[k]
		for i := 0; i < n; i++ {
			vi := v.At(i, k)
			for j := 0; j < n; j++ {
				out.Set(i, j, out.At(i, j)+vi*u.At(j, k)*inv)
			}
		}
	}

	return symmetrize(out, n), nil
}

// symmetrize averages a near-symmetric n×n Dense into a SymDense, masking
// the asymmetry that accumulates from floating-point solves.
func symmetrize(a *mat.Dense, n int) *mat.SymDense {
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (a.At(i, j) + a.At(j, i))
			sym.SetSym(i, j, v)
		}
	}
	return sym
}

// SolveSPD solves a*x = b for a symmetric positive-definite a, falling back
// to the SVD-based pseudoinverse (via SymInverse) when a is singular or
// badly conditioned, the teacher's normal-equations-then-SVD-fallback
// pattern from OLSEstimator.Estimate, applied through SymInverse rather than
// a direct SVD solve so a single fallback path covers both call sites.
func SolveSPD(a *mat.SymDense, b *mat.Dense) (*mat.Dense, error) {
	n := a.Symmetric()
	r, _ := b.Dims()
	if r != n {
		return nil, fmt.Errorf("numeric: dimension mismatch solving %dx%d system with %d-row rhs", n, n, r)
	}

	var chol mat.Cholesky
	if chol.Factorize(a) {
		var x mat.Dense
		if err := chol.SolveTo(&x, b); err == nil {
			return &x, nil
		}
	}

	inv, err := SymInverse(a)
	if err != nil {
		return nil, fmt.Errorf("numeric: solving %dx%d system: %w", n, n, err)
	}
	var x mat.Dense
	x.Mul(inv, b)
	return &x, nil
}

// MaskElem zeroes out entries of dst where mask is zero, in place.
func MaskElem(dst, mask *mat.Dense) {
	dst.MulElem(dst, mask)
}

// DiagFloor raises the diagonal of a symmetric matrix element-wise to at
// least floor[i], returning a new matrix (a is not mutated).
func DiagFloor(a *mat.SymDense, floor []float64) *mat.SymDense {
	n := a.Symmetric()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, a.At(i, j))
		}
	}
	for i := 0; i < n; i++ {
		if out.At(i, i) < floor[i] {
			out.SetSym(i, i, floor[i])
		}
	}
	return out
}

// MaskStruct zeroes symmetric-matrix entries where structMask (covstruct1)
// is zero, preserving symmetry.
func MaskStruct(a *mat.SymDense, structMask *mat.Dense) *mat.SymDense {
	n := a.Symmetric()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if structMask.At(i, j) == 0 {
				out.SetSym(i, j, 0)
				continue
			}
			out.SetSym(i, j, a.At(i, j))
		}
	}
	return out
}
