package saem

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/residual"
)

func TestRecordHistoryColumnOrder(t *testing.T) {
	cfg := &Config{
		ParHistThetaKeep: []int{0},
		ParHistOmegaKeep: []int{0},
		Endpoints: []EndpointSpec{{
			Free: residual.Free{A: true, Lambda: true},
		}},
	}
	e := &estimator{
		cfg:       cfg,
		plambda1:  []float64{7},
		gamma1:    mat.NewSymDense(1, []float64{0.5}),
		resParams: []residual.Params{{A: 1.5, Lambda: 0.3}},
		parHist:   mat.NewDense(1, 4, nil),
	}
	e.recordHistory(0)

	row := mat.Row(nil, 0, e.parHist)
	want := []float64{7, 0.5, 1.5, 0.3}
	for i, w := range want {
		if row[i] != w {
			t.Errorf("parHist[0][%d] = %v, want %v", i, row[i], w)
		}
	}
}

func TestCombinedPlambdaConcatenatesBlocks(t *testing.T) {
	e := &estimator{plambda1: []float64{1, 2}, plambda0: []float64{3}}
	got := e.combinedPlambda()
	want := []float64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("len(combinedPlambda()) = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("combinedPlambda()[%d] = %v, want %v", i, got[i], w)
		}
	}
}
