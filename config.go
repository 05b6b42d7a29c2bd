package saem

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/likelihood"
	"github.com/pmxsaem/saem/internal/predict"
	"github.com/pmxsaem/saem/internal/residual"
	"github.com/pmxsaem/saem/internal/transform"
)

// EndpointSpec bundles one endpoint's transform, residual-model kind, and
// freezing configuration: the per-endpoint transform spec plus the
// res.mod/ares/bres/cres/lres/resValue/resFixed residual fields.
type EndpointSpec struct {
	Kind      residual.Kind
	Transform transform.Spec
	PropT     bool
	AdjustF   bool

	Init  residual.Params // ares, bres, cres, lres at intake
	Free  residual.Free   // which scalars this endpoint estimates at all
	Fixed residual.Free   // resFixed: frozen at Value after NbFixResid
	Value residual.Params // resValue: the frozen target
}

// Config is the typed unpacking of the estimator's configuration record. It
// mirrors the teacher's ModelSpec/EstimationOptions split: topology and
// iteration tuning are plain fields, validated once at Fit's boundary.
type Config struct {
	// Iteration schedule.
	Niter int
	Nmc   int // M: number of replicate MCMC chains per subject
	Nu    [3]int
	NbSA, NbCorrel, NbFixOmega, NbFixResid, NiterPhi0 int
	CoefSA, CoefPhi0, Rmcmc                           float64
	Pas, Pash                                         []float64
	Minv                                              []float64 // per-phi1-column diagonal floor

	// Model topology.
	N    int        // number of subjects
	Ix1  []int      // phi columns belonging to the regressed (block-1) mean
	Ix0  []int      // phi columns belonging to the fixed-mean (block-0) block
	COV1 *mat.Dense // N x nlambda1, the covariate design for block 1
	COV0 *mat.Dense // N x nlambda0, the covariate design for block 0

	// CoefMap1/0 records the ind_cov1/jcov1 bookkeeping: which Plambda entry
	// feeds which (covariate column, phi column) cell of the coefficient
	// matrix MCOV, so mprior_phi = COV * MCOV can be rebuilt from the
	// current Plambda every iteration (see DESIGN.md).
	CoefMap1, CoefMap0 []CoefEntry

	FixedIx1, FixedIx0 []int // Plambda1/0 entries frozen at Plambda*Init

	CovStruct1 *mat.Dense // nphi1 x nphi1, 0/1 mask (off-diagonal structure)

	Gamma2Phi1Fixed        bool
	Gamma2Phi1FixedIx      *mat.Dense    // nphi1 x nphi1, 0/1 mask
	Gamma2Phi1FixedValues  *mat.SymDense // overlay values where the mask is set

	// Data.
	Y        []float64  // length K, observations across subjects/endpoints
	Evt      *mat.Dense // K x w event/dosing schedule
	IxIDM    []int      // length K, 0-based subject id per observation
	IxEndpnt []int      // length K, 0-based endpoint id per observation
	Cens     []likelihood.Censoring
	Limit    []float64 // length K, Tobit bound (math.Inf(-1) = none)

	NEndpnt   int
	Endpoints []EndpointSpec

	Ue *mat.Dense // N x nphi, 1 = variable, 0 = pinned to prior mean

	// Optimizer tuning.
	Itmax           int
	Tol             float64
	OptType         int // 1 = Nelder-Mead only, 2 = 1-D + Nelder-Mead fallback
	LambdaRange     float64
	PowRange        float64
	SearchBound     float64
	MaxOdeRecalc    int
	OdeRecalcFactor float64

	// Reporting.
	Print            int
	ParHistThetaKeep []int // indices into Plambda to retain in par_hist
	ParHistOmegaKeep []int // indices into diag(Gamma1) to retain in par_hist
	Distribution     likelihood.Distribution
	Debug            bool
	PhiMFile         string

	// External solver hook, generalizing the `.rx`/`.pars`/`opt`/`optM`
	// fields of the original estimator's configuration record.
	Solver        predict.Solver
	Pars          []string
	SolverOptions predict.SolverOptions

	// Initial values.
	Gamma1Init   *mat.SymDense
	Gamma0Init   *mat.SymDense // nphi0 x nphi0; internal proposal covariance, decays after NiterPhi0
	Plambda1Init []float64
	Plambda0Init []float64
}

// CoefEntry maps one Plambda coefficient onto a single (covariate column,
// phi column) cell of the coefficient matrix used to build mprior_phi =
// COV * MCOV, the ind_cov/jcov bookkeeping.
type CoefEntry struct {
	Lambda int // index into Plambda1 or Plambda0
	Cov    int // column index into COV1/COV0
	Phi    int // column index within the phi1/phi0 block (0-based within Ix1/Ix0)
}

// NPhi1 and NPhi0 report the width of the two phi blocks.
func (c *Config) NPhi1() int { return len(c.Ix1) }
func (c *Config) NPhi0() int { return len(c.Ix0) }
func (c *Config) NPhi() int  { return c.NPhi1() + c.NPhi0() }

// Validate fails fast on hard configuration errors: missing solver hook,
// wrong shapes, malformed iteration schedule. An unknown distribution tag
// is a separate, softer failure category that Fit handles on its own (see
// Distribution.Validate and Fit's diagnostic-and-return path), since a
// caller may reasonably want to distinguish "this run produced nothing"
// from "this config could never have run."
func (c *Config) Validate() error {
	if c.Solver == nil {
		return fmt.Errorf("saem: config.Solver is nil (external ODE solver hook is required)")
	}
	if len(c.Pars) == 0 {
		return fmt.Errorf("saem: config.Pars is empty (solver parameter names are required)")
	}
	if c.N <= 0 {
		return fmt.Errorf("saem: config.N must be positive, got %d", c.N)
	}
	if c.Nmc <= 0 {
		return fmt.Errorf("saem: config.Nmc must be positive, got %d", c.Nmc)
	}
	if c.Niter <= 0 {
		return fmt.Errorf("saem: config.Niter must be positive, got %d", c.Niter)
	}
	if len(c.Pas) != c.Niter {
		return fmt.Errorf("saem: config.Pas must have length Niter=%d, got %d", c.Niter, len(c.Pas))
	}
	if len(c.Pash) != c.Niter {
		return fmt.Errorf("saem: config.Pash must have length Niter=%d, got %d", c.Niter, len(c.Pash))
	}
	if c.NEndpnt <= 0 || len(c.Endpoints) != c.NEndpnt {
		return fmt.Errorf("saem: config.Endpoints must have length NEndpnt=%d, got %d", c.NEndpnt, len(c.Endpoints))
	}
	if c.Ue == nil {
		return fmt.Errorf("saem: config.Ue mask matrix is required")
	}
	nr, nc := c.Ue.Dims()
	if nr != c.N || nc != c.NPhi() {
		return fmt.Errorf("saem: config.Ue must be %d x %d, got %d x %d", c.N, c.NPhi(), nr, nc)
	}
	if len(c.Y) == 0 {
		return fmt.Errorf("saem: config.Y has no observations")
	}
	if len(c.IxIDM) != len(c.Y) || len(c.IxEndpnt) != len(c.Y) {
		return fmt.Errorf("saem: config.IxIDM/IxEndpnt must match len(Y)=%d", len(c.Y))
	}
	if c.Gamma1Init == nil {
		return fmt.Errorf("saem: config.Gamma1Init is required")
	}
	if c.NPhi1() > 0 && c.Gamma1Init.Symmetric() != c.NPhi1() {
		return fmt.Errorf("saem: config.Gamma1Init must be %d x %d, got %d x %d", c.NPhi1(), c.NPhi1(), c.Gamma1Init.Symmetric(), c.Gamma1Init.Symmetric())
	}
	return nil
}
