package saem

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem/internal/residual"
)

func TestPerSubjectChainSumAddsAcrossChains(t *testing.T) {
	// n=2 subjects, m=2 chains, 1 column: chain 0 = [1,2], chain 1 = [3,4].
	phi := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	sum := perSubjectChainSum(phi, 2, 2)
	if sum.At(0, 0) != 4 { // 1+3
		t.Errorf("subject 0 sum = %v, want 4", sum.At(0, 0))
	}
	if sum.At(1, 0) != 6 { // 2+4
		t.Errorf("subject 1 sum = %v, want 6", sum.At(1, 0))
	}
}

func TestBlendMatMovesTowardTarget(t *testing.T) {
	x := mat.NewDense(1, 1, []float64{0})
	sum := mat.NewDense(1, 1, []float64{10})
	blendMat(x, sum, 2, 0.5) // target = 10/2 = 5, blended halfway from 0
	if x.At(0, 0) != 2.5 {
		t.Errorf("blendMat result = %v, want 2.5", x.At(0, 0))
	}
}

func TestResidualStatKindClassifiesAllTenKinds(t *testing.T) {
	cases := map[residual.Kind]residualStatClass{
		residual.Add:        statAdditive,
		residual.AddLam:     statAdditive,
		residual.Prop:       statProportional,
		residual.Pow:        statProportional,
		residual.AddProp:    statProportional,
		residual.AddPow:     statProportional,
		residual.PropLam:    statProportional,
		residual.PowLam:     statProportional,
		residual.AddPropLam: statProportional,
		residual.AddPowLam:  statProportional,
	}
	for kind, want := range cases {
		if got := residualStatKind(kind); got != want {
			t.Errorf("residualStatKind(%v) = %v, want %v", kind, got, want)
		}
	}
}
