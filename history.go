package saem

// recordHistory appends one row of par_hist holding the selected Plambda
// entries, the selected Gamma1 diagonal entries, and each endpoint's free
// residual scalars, in that fixed column order
// (ParHistThetaKeep/ParHistOmegaKeep/resKeep).
func (e *estimator) recordHistory(iter int) {
	theta := e.combinedPlambda()
	col := 0
	for _, idx := range e.cfg.ParHistThetaKeep {
		e.parHist.Set(iter, col, theta[idx])
		col++
	}
	for _, idx := range e.cfg.ParHistOmegaKeep {
		e.parHist.Set(iter, col, e.gamma1.At(idx, idx))
		col++
	}
	for b, ep := range e.cfg.Endpoints {
		p := e.resParams[b]
		if ep.Free.A {
			e.parHist.Set(iter, col, p.A)
			col++
		}
		if ep.Free.B {
			e.parHist.Set(iter, col, p.B)
			col++
		}
		if ep.Free.C {
			e.parHist.Set(iter, col, p.C)
			col++
		}
		if ep.Free.Lambda {
			e.parHist.Set(iter, col, p.Lambda)
			col++
		}
	}
}

// combinedPlambda concatenates the regressed and fixed-mean coefficient
// blocks into the single vector par_hist and the Fisher accumulators index
// by.
func (e *estimator) combinedPlambda() []float64 {
	out := make([]float64, len(e.plambda1)+len(e.plambda0))
	copy(out, e.plambda1)
	copy(out[len(e.plambda1):], e.plambda0)
	return out
}
