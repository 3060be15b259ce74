package model

import (
	"sync"

	"grmcore/linalg"
)

// Residual computes the DAE residual F(t,y,ydot) of spec §4.D.1 into
// res, and, when wantJac, analytically assembles jacC/jacP/jacFC/jacCF/
// jacFP/jacPF (the ∂F/∂y part; the α·∂F/∂ẏ time-discretized part is
// assembled separately in LinearSolve/ConsistentInitialConditions per
// §4.D.2 step 1). When ydot is nil the time-derivative contribution is
// omitted, per §4.D.1 ("used for RHS of consistent-ẏ system").
//
// timeFactor is the derivative of the affine section-time transform
// (section width / unit width, §9); plain float64 here since this is
// the hot time-stepping path. Parameter sensitivities that need AD
// directional derivatives of this same physics go through
// ad_residual.go's dedicated ad.Value re-derivation instead of making
// this method generic.
func (m *Model) Residual(secIdx int, t, timeFactor float64, y, ydot []float64, res []float64, wantJac bool) {
	cfg := m.cfg

	if wantJac {
		for c := 0; c < cfg.NComp; c++ {
			m.jacC[c].SetAll(0)
		}
		for k := 0; k < cfg.NCol; k++ {
			m.jacP[k].SetAll(0)
		}
		m.jacFC.Clear()
		m.jacCF.Clear()
		for k := 0; k < cfg.NCol; k++ {
			m.jacFP[k].Clear()
			m.jacPF[k].Clear()
		}
	}

	m.residualBulk(t, timeFactor, y, ydot, res, wantJac)
	m.residualParticle(secIdx, t, timeFactor, y, ydot, res, wantJac)
	m.residualFlux(y, res, wantJac)
}

// residualBulk fills the nComp*nCol bulk rows: upwind convection +
// central dispersion + film-flux sink. One goroutine per component
// (§5's per-component bulk-block assembly): each writes only its own
// res rows and jacC[c] band, both disjoint across components, so only
// the shared jacCF coupling matrix needs a mutex.
func (m *Model) residualBulk(t, timeFactor float64, y, ydot, res []float64, wantJac bool) {
	cfg, idx := m.cfg, m.idx
	h := cfg.cellSpacing()
	var jacCFMu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(cfg.NComp)
	for c := 0; c < cfg.NComp; c++ {
		c := c
		go func() {
			defer wg.Done()
			dax := cfg.ColDispersion[c]
			phi := cfg.filmFactor(c)
			for k := 0; k < cfg.NCol; k++ {
				row := idx.OffsetBulkComp(c) + k
				ck := y[row]
				var cPrev, cNext float64
				if k == 0 {
					cPrev = cfg.InletConcentration(t, c)
				} else {
					cPrev = y[row-1]
				}
				if k == cfg.NCol-1 {
					cNext = ck // zero-gradient outlet
				} else {
					cNext = y[row+1]
				}
				conv := timeFactor * cfg.Velocity / h * (ck - cPrev)
				disp := timeFactor * dax / (h * h) * (cNext - 2*ck + cPrev)
				jf := y[idx.OffsetJfComp(c)+k]
				val := -conv + disp - phi*jf
				if ydot != nil {
					val += ydot[row]
				}
				res[row] = val

				if wantJac {
					jb := m.jacC[c]
					jb.Increment(k, k, -timeFactor*cfg.Velocity/h-2*timeFactor*dax/(h*h))
					if k > 0 {
						jb.Increment(k, k-1, timeFactor*cfg.Velocity/h+timeFactor*dax/(h*h))
					}
					if k < cfg.NCol-1 {
						jb.Increment(k, k+1, timeFactor*dax/(h*h))
					} else {
						// zero-gradient outlet folds the "next" coefficient
						// back onto the diagonal.
						jb.Increment(k, k, timeFactor*dax/(h*h))
					}
					jacCFMu.Lock()
					m.jacCF.Set(idx.OffsetBulkComp(c)+k, idx.LocalFluxIndex(c, k), -phi)
					jacCFMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
}

// residualParticle fills the per-cell particle liquid+bound rows: radial
// diffusion + binding-model contribution, per §4.D.3's liquid/bound
// coupling coefficients. One goroutine per column (§5's per-particle-
// block assembly): res, jacP[k], and jacPF[k] are all disjoint across
// columns, so no synchronization is needed beyond the final barrier.
func (m *Model) residualParticle(secIdx int, t, timeFactor float64, y, ydot, res []float64, wantJac bool) {
	cfg, idx := m.cfg, m.idx
	hp := cfg.shellSpacing()
	strideShell := idx.StrideParShell()
	surf := cfg.surfaceFactor()

	var wg sync.WaitGroup
	wg.Add(cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		k := k
		go func() {
			defer wg.Done()
			m.residualParticleColumn(k, secIdx, t, timeFactor, hp, strideShell, surf, y, ydot, res, wantJac)
		}()
	}
	wg.Wait()
}

// residualParticleColumn is one column's body of the former sequential
// residualParticle loop, unchanged in substance, split out so it can run
// as a goroutine per column.
func (m *Model) residualParticleColumn(k, secIdx int, t, timeFactor, hp float64, strideShell int, surf float64, y, ydot, res []float64, wantJac bool) {
	cfg, idx := m.cfg, m.idx
	jb := m.jacP[k]
	for j := 0; j < cfg.NPar; j++ {
		base := idx.OffsetParShell(k, j)
		localBase := j * strideShell

		cp := y[base : base+cfg.NComp]
		q := y[base+cfg.NComp : base+strideShell]

		bindRes := make([]float64, idx.StrideBound())
		var jacQ, jacCp *linalg.Dense
		if wantJac {
			jacQ = linalg.NewDense(idx.StrideBound(), idx.StrideBound())
			jacCp = linalg.NewDense(idx.StrideBound(), cfg.NComp)
		}
		m.bnd.Residual(t, 0, 0, secIdx, cp, q, bindRes, wantJac, jacQ, jacCp)

		for c := 0; c < cfg.NComp; c++ {
			row := base + c
			var cPrev, cNext float64
			hasPrev, hasNext := j > 0, j < cfg.NPar-1
			if hasPrev {
				cPrev = y[row-strideShell]
			} else {
				cPrev = cp[c] // reflecting boundary at particle center
			}
			if hasNext {
				cNext = y[row+strideShell]
			} else {
				cNext = cp[c] // outer flux handled as a separate source term below
			}
			lap := (cPrev - 2*cp[c] + cNext) / (hp * hp)
			val := -timeFactor * cfg.ParDiffusion[c] * lap

			qdotTotal := 0.0
			boundStart := 0
			for cc := 0; cc < c; cc++ {
				boundStart += m.bnd.NBound()[cc]
			}
			nb := m.bnd.NBound()[c]
			if ydot != nil {
				val += ydot[row]
				for b := 0; b < nb; b++ {
					qdotTotal += ydot[base+cfg.NComp+boundStart+b]
				}
				val += (1/cfg.BetaP - 1) * qdotTotal
			}
			if j == cfg.NPar-1 {
				jf := y[idx.OffsetJfComp(c)+k]
				val -= surf * jf
			}
			res[row] = val

			if wantJac {
				coef := -timeFactor * cfg.ParDiffusion[c] / (hp * hp)
				jb.Increment(localBase+c, localBase+c, -2*coef)
				if hasPrev {
					jb.Increment(localBase+c, localBase+c-strideShell, coef)
				} else {
					jb.Increment(localBase+c, localBase+c, coef)
				}
				if hasNext {
					jb.Increment(localBase+c, localBase+c+strideShell, coef)
				} else {
					jb.Increment(localBase+c, localBase+c, coef)
				}
				if j == cfg.NPar-1 {
					m.jacPF[k].Set(localBase+c, idx.LocalFluxIndex(c, k), -surf)
				}
			}
		}

		for b := 0; b < idx.StrideBound(); b++ {
			row := base + cfg.NComp + b
			res[row] = bindRes[b]
			if ydot != nil && !m.isAlgebraicRow(b) {
				res[row] += ydot[row]
			}
			if wantJac {
				for bb := 0; bb < idx.StrideBound(); bb++ {
					jb.Increment(localBase+cfg.NComp+b, localBase+cfg.NComp+bb, jacQ.Get(b, bb))
				}
				for c := 0; c < cfg.NComp; c++ {
					jb.Increment(localBase+cfg.NComp+b, localBase+c, jacCp.Get(b, c))
				}
			}
		}
	}
}

func (m *Model) isAlgebraicRow(localBoundRow int) bool {
	if !m.bnd.HasAlgebraicEquations() {
		return false
	}
	start, length := m.bnd.GetAlgebraicBlock()
	return localBoundRow >= start && localBoundRow < start+length
}

// residualFlux fills the algebraic film-flux rows: j_f - k_f*(c - c_p).
func (m *Model) residualFlux(y, res []float64, wantJac bool) {
	cfg, idx := m.cfg, m.idx
	outerShell := cfg.NPar - 1
	for c := 0; c < cfg.NComp; c++ {
		kf := cfg.FilmDiffusion[c]
		for k := 0; k < cfg.NCol; k++ {
			row := idx.OffsetJfComp(c) + k
			cBulk := y[idx.OffsetBulkComp(c)+k]
			cpOuter := y[idx.OffsetParShell(k, outerShell)+c]
			jf := y[row]
			res[row] = jf - kf*(cBulk-cpOuter)
			if wantJac {
				local := idx.LocalFluxIndex(c, k)
				m.jacFC.Set(local, idx.OffsetBulkComp(c)+k, -kf)
				m.jacFP[k].Set(local, outerShell*idx.StrideParShell()+c, kf)
			}
		}
	}
}
