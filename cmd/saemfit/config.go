package main

import (
	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem"
	"github.com/pmxsaem/saem/internal/likelihood"
	"github.com/pmxsaem/saem/internal/predict"
	"github.com/pmxsaem/saem/internal/residual"
	"github.com/pmxsaem/saem/internal/transform"
)

// buildConfig turns a long-format Dataset into the two-parameter (CL, V)
// one-compartment population model saemfit demonstrates: both CL and V are
// estimated as population mean plus random effect (Ix1), there is no
// fixed-mean block, and the single proportional-error endpoint's b
// parameter is free.
func buildConfig(ds *Dataset, niter int) (*saem.Config, error) {
	subjectIx := map[string]int{}
	var subjects []string
	for _, id := range ds.ID {
		if _, ok := subjectIx[id]; !ok {
			subjectIx[id] = len(subjects)
			subjects = append(subjects, id)
		}
	}
	n := len(subjects)
	k := len(ds.DV)

	evt := mat.NewDense(k, 2, nil)
	ixIDM := make([]int, k)
	ixEndpnt := make([]int, k)
	cens := make([]likelihood.Censoring, k)
	for i := 0; i < k; i++ {
		evt.Set(i, 0, ds.Time[i])
		evt.Set(i, 1, ds.Dose[i])
		ixIDM[i] = subjectIx[ds.ID[i]]
		cens[i] = likelihood.Censoring(ds.Cens[i])
	}

	cov1 := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		cov1.Set(i, 0, 1)
	}

	ue := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		ue.Set(i, 0, 1)
		ue.Set(i, 1, 1)
	}

	gamma1 := mat.NewSymDense(2, nil)
	gamma1.SetSym(0, 0, 0.25)
	gamma1.SetSym(1, 1, 0.25)

	pas, pash := stepSizeSchedule(niter)

	cfg := &saem.Config{
		Niter: niter,
		Nmc:   3,
		Nu:    [3]int{2, 2, 2},

		NbSA:       niter / 2,
		NbCorrel:   0,
		NbFixOmega: niter,
		NbFixResid: niter / 4,
		NiterPhi0:  0,
		CoefSA:     0.95,
		CoefPhi0:   0.9,
		Rmcmc:      1.0,
		Pas:        pas,
		Pash:       pash,

		N:        n,
		Ix1:      []int{0, 1},
		Ix0:      nil,
		COV1:     cov1,
		COV0:     mat.NewDense(n, 0, nil),
		CoefMap1: []saem.CoefEntry{{Lambda: 0, Cov: 0, Phi: 0}, {Lambda: 1, Cov: 0, Phi: 1}},

		Y:        ds.DV,
		Evt:      evt,
		IxIDM:    ixIDM,
		IxEndpnt: ixEndpnt,
		Cens:     cens,
		Limit:    ds.Limit,

		NEndpnt: 1,
		Endpoints: []saem.EndpointSpec{{
			Kind:      residual.Prop,
			Transform: transform.Spec{Yj: transform.Identity},
			PropT:     true,
			Init:      residual.Params{B: 0.2},
			Free:      residual.Free{B: true},
		}},

		Ue: ue,

		Itmax:           200,
		Tol:             1e-4,
		OptType:         2,
		LambdaRange:     3,
		PowRange:        3,
		SearchBound:     10,
		MaxOdeRecalc:    0,
		OdeRecalcFactor: 10,

		Print:            maxInt(niter/10, 1),
		ParHistThetaKeep: []int{0, 1},
		ParHistOmegaKeep: []int{0, 1},
		Distribution:     likelihood.Gaussian,

		Solver: onecompSolver{},
		Pars:   []string{"CL", "V"},
		SolverOptions: predict.SolverOptions{
			AbsTol: 1e-6,
			RelTol: 1e-6,
		},

		Gamma1Init:   gamma1,
		Plambda1Init: []float64{1, 10},
		Plambda0Init: nil,
	}
	return cfg, nil
}

func stepSizeSchedule(niter int) ([]float64, []float64) {
	nbSA := niter / 2
	pas := make([]float64, niter)
	pash := make([]float64, niter)
	for k := 0; k < niter; k++ {
		if k < nbSA {
			pas[k] = 1
			pash[k] = 1
			continue
		}
		step := float64(k - nbSA + 1)
		pas[k] = 1 / step
		pash[k] = 1 / step
	}
	return pas, pash
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
