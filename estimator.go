package saem

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/pmxsaem/saem/internal/residual"
)

// estimator holds every mutable value the SAEM iteration body touches: one
// struct built once per Fit call and passed by reference into the
// per-step helpers in mstep.go/statistics.go/fisher.go/history.go.
type estimator struct {
	cfg *Config

	nphi1, nphi0 int
	nlambda1     int
	nlambda0     int

	plambda1 []float64
	plambda0 []float64

	gamma1 *mat.SymDense
	gamma0 *mat.SymDense // nphi0 x nphi0; internal proposal covariance for the fixed-mean block

	// phiM is the (N*Nmc) x nphi current MCMC sample; row block m*N..m*N+N-1
	// holds chain m's subjects in subject order.
	phiM *mat.Dense

	// fsave caches the last accepted prediction per observation, indexed
	// the same way as cfg.Y, so the statistics update doesn't re-solve.
	fsave []float64

	// sufficient statistics for the M-step. statphi*1 is N x nphi*, the
	// per-subject chain-averaged mean; statphi*2 is nphi* x nphi*, the
	// chain-averaged aggregate phi'phi used by the covariance M-step's
	// sum-of-squares decomposition.
	statphi11 *mat.Dense
	statphi12 *mat.Dense
	statphi01 *mat.Dense
	statphi02 *mat.Dense
	statrese  []float64 // nendpnt, running sum of squared transformed residual

	// Fisher accumulators: running score and observed-information surrogates.
	l  []float64
	ha *mat.Dense
	hb *mat.Dense

	resParams []residual.Params // current per-endpoint residual scalars

	parHist *mat.Dense

	dumpFile *os.File

	iter int
}

// newEstimator builds the zeroed/initialized mutable state for one Fit
// call: prior means, initial phiM draw, residual params, and the chain
// dump file, opened here and closed on exit from every return path.
func newEstimator(cfg *Config) (*estimator, error) {
	e := &estimator{
		cfg:       cfg,
		nphi1:     cfg.NPhi1(),
		nphi0:     cfg.NPhi0(),
		plambda1:  append([]float64(nil), cfg.Plambda1Init...),
		plambda0:  append([]float64(nil), cfg.Plambda0Init...),
		gamma1:    cloneSym(cfg.Gamma1Init),
		resParams: make([]residual.Params, cfg.NEndpnt),
		statrese:  make([]float64, cfg.NEndpnt),
		fsave:     make([]float64, len(cfg.Y)),
	}
	if e.nphi1 > 0 {
		_, e.nlambda1 = dims(cfg.COV1)
		e.statphi11 = mat.NewDense(cfg.N, e.nphi1, nil)
		e.statphi12 = mat.NewDense(e.nphi1, e.nphi1, nil)
	}
	if e.nphi0 > 0 {
		_, e.nlambda0 = dims(cfg.COV0)
		e.statphi01 = mat.NewDense(cfg.N, e.nphi0, nil)
		e.statphi02 = mat.NewDense(e.nphi0, e.nphi0, nil)
		if cfg.Gamma0Init != nil {
			e.gamma0 = cloneSym(cfg.Gamma0Init)
		} else {
			e.gamma0 = mat.NewSymDense(e.nphi0, nil)
		}
	}
	for b, ep := range cfg.Endpoints {
		e.resParams[b] = ep.Init
	}

	nparam := e.nlambda1 + e.nlambda0
	e.l = make([]float64, nparam)
	e.ha = mat.NewDense(nparam, nparam, nil)
	e.hb = mat.NewDense(nparam, nparam, nil)

	nphi := cfg.NPhi()
	e.phiM = mat.NewDense(cfg.N*cfg.Nmc, nphi, nil)
	mprior1, mprior0 := e.priorMeans()
	if err := e.drawInitialPhi(mprior1, mprior0); err != nil {
		return nil, err
	}

	keepCols := len(cfg.ParHistThetaKeep) + len(cfg.ParHistOmegaKeep) + resKeepWidth(cfg)
	e.parHist = mat.NewDense(cfg.Niter, keepCols, nil)

	if cfg.PhiMFile != "" {
		f, err := os.Create(cfg.PhiMFile)
		if err != nil {
			return nil, fmt.Errorf("saem: opening phiMFile %q: %w", cfg.PhiMFile, err)
		}
		e.dumpFile = f
	}

	return e, nil
}

// close flushes and closes the chain dump file on every return path,
// tolerating a nil dumpFile.
func (e *estimator) close() error {
	if e.dumpFile == nil {
		return nil
	}
	err := e.dumpFile.Sync()
	cerr := e.dumpFile.Close()
	if err != nil {
		return err
	}
	return cerr
}

// priorMeans computes mprior_phi1 = COV1*MCOV1 and mprior_phi0 = COV0*MCOV0,
// rebuilding MCOV1/MCOV0 from the current Plambda via cfg.CoefMap1/0 (see
// DESIGN.md for why MCOV is derived rather than stored). Returns N x nphi1 /
// N x nphi0 matrices, the latter N x 0 when nphi0 = 0.
func (e *estimator) priorMeans() (mprior1, mprior0 *mat.Dense) {
	cfg := e.cfg
	if e.nphi1 > 0 {
		mcov1 := buildMCOV(e.plambda1, cfg.CoefMap1, e.nlambda1, e.nphi1)
		mprior1 = mat.NewDense(cfg.N, e.nphi1, nil)
		mprior1.Mul(cfg.COV1, mcov1)
	} else {
		mprior1 = mat.NewDense(cfg.N, 0, nil)
	}
	if e.nphi0 > 0 {
		mcov0 := buildMCOV(e.plambda0, cfg.CoefMap0, e.nlambda0, e.nphi0)
		mprior0 = mat.NewDense(cfg.N, e.nphi0, nil)
		mprior0.Mul(cfg.COV0, mcov0)
	} else {
		mprior0 = mat.NewDense(cfg.N, 0, nil)
	}
	return mprior1, mprior0
}

// buildMCOV scatters plambda into the (nlambda x nphi) coefficient matrix
// mprior_phi = COV * MCOV is built from, per coefMap's (Lambda, Cov, Phi)
// triples, the same Set-loop idiom OLSEstimator.Estimate uses to fill its
// regressor matrix.
func buildMCOV(plambda []float64, coefMap []CoefEntry, nlambda, nphi int) *mat.Dense {
	m := mat.NewDense(nlambda, nphi, nil)
	for _, c := range coefMap {
		m.Set(c.Cov, c.Phi, plambda[c.Lambda])
	}
	return m
}

// drawInitialPhi fills phiM's first sample: subjects draw phi1 ~
// N(mprior1_i, Gamma1) masked by Ue, phi0 pinned at mprior0_i, so column j
// always lies in the support ue[*,j] implies.
func (e *estimator) drawInitialPhi(mprior1, mprior0 *mat.Dense) error {
	cfg := e.cfg
	var dist *distmv.Normal
	if e.nphi1 > 0 {
		mu := make([]float64, e.nphi1)
		d, ok := distmv.NewNormal(mu, e.gamma1, nil)
		if !ok {
			return fmt.Errorf("saem: initial Gamma1 is not positive-definite")
		}
		dist = d
	}
	draw := make([]float64, maxInt(e.nphi1, 1))

	for m := 0; m < cfg.Nmc; m++ {
		for i := 0; i < cfg.N; i++ {
			row := m*cfg.N + i
			if e.nphi1 > 0 {
				dist.Rand(draw)
			}
			for j, col := range cfg.Ix1 {
				mean := mprior1.At(i, j)
				v := mean
				if cfg.Ue.At(i, col) != 0 {
					v = mean + draw[j]
				}
				e.phiM.Set(row, col, v)
			}
			for j, col := range cfg.Ix0 {
				e.phiM.Set(row, col, mprior0.At(i, j))
			}
		}
	}
	return nil
}

// extractCols copies the named columns of m into a new (rows x len(cols))
// Dense, the way the teacher builds regressor matrices column-by-column in
// OLSEstimator.Estimate.
func extractCols(m *mat.Dense, cols []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		for j, c := range cols {
			out.Set(i, j, m.At(i, c))
		}
	}
	return out
}

func cloneSym(a *mat.SymDense) *mat.SymDense {
	n := a.Symmetric()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, a.At(i, j))
		}
	}
	return out
}

func dims(m *mat.Dense) (int, int) {
	r, c := m.Dims()
	return r, c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func resKeepWidth(cfg *Config) int {
	n := 0
	for _, ep := range cfg.Endpoints {
		d := residualDescriptorWidth(ep)
		n += d
	}
	return n
}

// residualDescriptorWidth counts how many of {a,b,c,lambda} an endpoint's
// Free mask marks as kept in par_hist.
func residualDescriptorWidth(ep EndpointSpec) int {
	n := 0
	if ep.Free.A {
		n++
	}
	if ep.Free.B {
		n++
	}
	if ep.Free.C {
		n++
	}
	if ep.Free.Lambda {
		n++
	}
	return n
}
