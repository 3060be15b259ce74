package model

import (
	"fmt"
	"sync"

	"grmcore/grmerr"
	"grmcore/linalg"
)

// solveForFluxes recomputes the algebraic flux rows from the current
// bulk and particle liquid concentrations: j_f = k_f·(c − c_p), using
// the pre-assembled jacFC/jacFP matrices, which already hold ±k_f
// (§4.D.3 step 1). It zeroes the flux rows itself before accumulating,
// so repeated application is idempotent (§8 property 2) rather than
// requiring the caller to reset j_f first.
func (m *Model) solveForFluxes(y []float64) {
	cfg, idx := m.cfg, m.idx
	nBulk := cfg.NComp * cfg.NCol
	foff := idx.OffsetJf()
	yf := y[foff : foff+nBulk]
	for i := range yf {
		yf[i] = 0
	}
	m.jacFC.MultiplySubtract(y[0:nBulk], yf)
	for k := 0; k < cfg.NCol; k++ {
		off := idx.OffsetParBlock(k)
		n := idx.StrideParBlock()
		m.jacFP[k].MultiplySubtract(y[off:off+n], yf)
	}
}

// shellWorkspace returns column k's disjoint slice of the shared scratch
// arena, sized for one call to binding.Model.ConsistentInitialState
// (§5's shared-resource policy).
func (m *Model) shellWorkspace(k int) []float64 {
	wsPerShell := m.bnd.ConsistentInitializationWorkspaceSize() + m.idx.StrideParShell()*m.idx.StrideParShell()
	base := k * wsPerShell
	return m.tempState[base : base+m.bnd.ConsistentInitializationWorkspaceSize()]
}

// algebraicClosure runs §4.D.3 step 1: per-shell algebraic binding
// solves (parallel per column, serial within a column's shells), then
// the flux fill. Column failures are recorded and checked after the
// parallel barrier, never aborting a goroutine mid-region (§7).
func (m *Model) algebraicClosure(t float64, secIdx int, y []float64, tol float64) error {
	cfg, idx := m.cfg, m.idx
	shellStride := idx.StrideParShell()
	failures := make([]error, cfg.NCol)

	var wg sync.WaitGroup
	wg.Add(cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		k := k
		go func() {
			defer wg.Done()
			denseJac := linalg.NewDense(idx.StrideBound(), idx.StrideBound())
			ws := m.shellWorkspace(k)
			for j := 0; j < cfg.NPar; j++ {
				base := idx.OffsetParShell(k, j)
				cp := y[base : base+cfg.NComp]
				q := y[base+cfg.NComp : base+shellStride]
				if err := m.bnd.ConsistentInitialState(t, 0, 0, secIdx, cp, q, tol, ws, denseJac); err != nil {
					failures[k] = &grmerr.AlgebraicSolveFailure{Col: k, Shell: j, Residual: tol}
					return
				}
			}
		}()
	}
	wg.Wait()
	for _, err := range failures {
		if err != nil {
			m.log.WithError(err).Warn("consistent initialization: algebraic binding solve did not converge")
			return &grmerr.IntegrationFailure{LastTime: t, Err: err}
		}
	}

	m.solveForFluxes(y)
	m.factorizeJacobian = true
	return nil
}

// assembleTimeDerivativeBulk assembles jacCdisc[c] ← timeFactor·I, the
// bulk block's ∂F/∂ẏ operator used by the consistent-ẏ solve (§4.D.3
// step 2; distinct from assembleDiscretized's ∂F/∂y + α∂F/∂ẏ blend
// used by the ordinary time-stepping linear solve).
func (m *Model) assembleTimeDerivativeBulk(c int, timeFactor float64) {
	cfg := m.cfg
	m.jacCdisc[c].SetAll(0)
	for k := 0; k < cfg.NCol; k++ {
		m.jacCdisc[c].Set(k, k, timeFactor)
	}
}

// assembleTimeDerivativeParticle assembles jacPdisc[k]'s ∂F/∂ẏ operator:
// timeFactor on the liquid diagonal, timeFactor·(1/βp − 1) coupling each
// liquid row to its component's bound states, and the binding model's
// timeFactor·∂F_bind/∂ẏ — then overwrites the algebraic-block rows with
// the corresponding rows of jacP[k] verbatim, per §4.D.3 step 2.
func (m *Model) assembleTimeDerivativeParticle(k int, timeFactor float64) {
	cfg, idx := m.cfg, m.idx
	strideShell := idx.StrideParShell()
	m.jacPdisc[k].SetAll(0)

	boundJac := linalg.NewDense(idx.StrideBound(), idx.StrideBound())
	m.bnd.JacobianAddDiscretized(timeFactor, boundJac)

	for j := 0; j < cfg.NPar; j++ {
		localBase := j * strideShell
		boundStart := 0
		for c := 0; c < cfg.NComp; c++ {
			m.jacPdisc[k].Set(localBase+c, localBase+c, timeFactor)
			nb := m.bnd.NBound()[c]
			for b := 0; b < nb; b++ {
				m.jacPdisc[k].Set(localBase+c, localBase+cfg.NComp+boundStart+b, timeFactor*(1/cfg.BetaP-1))
			}
			boundStart += nb
		}
		for b := 0; b < idx.StrideBound(); b++ {
			for bb := 0; bb < idx.StrideBound(); bb++ {
				if v := boundJac.Get(b, bb); v != 0 {
					m.jacPdisc[k].Set(localBase+cfg.NComp+b, localBase+cfg.NComp+bb, v)
				}
			}
		}
	}

	if !m.bnd.HasAlgebraicEquations() {
		return
	}
	start, length := m.bnd.GetAlgebraicBlock()
	for j := 0; j < cfg.NPar; j++ {
		localBase := j * strideShell
		for row := start; row < start+length; row++ {
			r := localBase + cfg.NComp + row
			lo, hi := m.jacP[k].RowRange(r)
			for col := lo; col < hi; col++ {
				m.jacPdisc[k].Set(r, col, m.jacP[k].Get(r, col))
			}
		}
	}
}

// zeroAlgebraicRows zeros column k's algebraic-block rows of rhs, to
// pair with assembleTimeDerivativeParticle's matrix-row overwrite
// (§4.D.3 step 2: "zero the RHS there").
func (m *Model) zeroAlgebraicRows(rhs []float64, k int) {
	if !m.bnd.HasAlgebraicEquations() {
		return
	}
	cfg, idx := m.cfg, m.idx
	start, length := m.bnd.GetAlgebraicBlock()
	strideShell := idx.StrideParShell()
	off := idx.OffsetParBlock(k)
	for j := 0; j < cfg.NPar; j++ {
		localBase := j * strideShell
		for row := start; row < start+length; row++ {
			rhs[off+localBase+cfg.NComp+row] = 0
		}
	}
}

// solveTimeDerivativeBlockSystem solves the bulk/particle time-derivative
// block system in place on rhs (flux rows are the caller's
// responsibility, via solveForFluxes). Shared by the full consistent-ẏ
// solve (§4.D.3 step 2) and the consistent-sensitivity block solve
// (§4.D.5). When full is false (lean mode, §4.D.4), only the bulk
// blocks are solved and a warning is logged, since lean mode is
// inappropriate whenever pore/surface diffusion varies by section — a
// condition this engine does not currently track per call, so the
// warning fires on every lean solve rather than only the section-
// dependent ones.
func (m *Model) solveTimeDerivativeBlockSystem(timeFactor float64, rhs []float64, full bool) error {
	cfg, idx := m.cfg, m.idx
	failures := make([]error, cfg.NComp+cfg.NCol)

	var wg sync.WaitGroup
	wg.Add(cfg.NComp)
	for c := 0; c < cfg.NComp; c++ {
		c := c
		go func() {
			defer wg.Done()
			m.assembleTimeDerivativeBulk(c, timeFactor)
			if !m.jacCdisc[c].Factorize() {
				failures[c] = &grmerr.LinearSolveFatal{Reason: fmt.Sprintf("bulk time-derivative block %d singular", c)}
				return
			}
			off := idx.OffsetBulkComp(c)
			if err := m.jacCdisc[c].Solve(rhs[off : off+cfg.NCol]); err != nil {
				failures[c] = &grmerr.LinearSolveFatal{Reason: fmt.Sprintf("bulk time-derivative solve on block %d: %v", c, err)}
			}
		}()
	}
	wg.Wait()
	for _, err := range failures[:cfg.NComp] {
		if err != nil {
			return err
		}
	}

	if !full {
		m.log.Warn("lean consistent initialization skipped the particle time-derivative solve; inappropriate when pore/surface diffusion is section-dependent")
		m.factorizeJacobian = true
		return nil
	}

	wg.Add(cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		k := k
		go func() {
			defer wg.Done()
			m.assembleTimeDerivativeParticle(k, timeFactor)
			m.zeroAlgebraicRows(rhs, k)
			if !m.jacPdisc[k].Factorize() {
				failures[cfg.NComp+k] = &grmerr.LinearSolveFatal{Reason: fmt.Sprintf("particle time-derivative block %d singular", k)}
				return
			}
			off := idx.OffsetParBlock(k)
			n := idx.StrideParBlock()
			if err := m.jacPdisc[k].Solve(rhs[off : off+n]); err != nil {
				failures[cfg.NComp+k] = &grmerr.LinearSolveFatal{Reason: fmt.Sprintf("particle time-derivative solve on block %d: %v", k, err)}
			}
		}()
	}
	wg.Wait()
	for _, err := range failures[cfg.NComp:] {
		if err != nil {
			return err
		}
	}

	m.factorizeJacobian = true
	return nil
}

// consistentTimeDerivatives implements §4.D.3 step 2 / §4.D.4: evaluate
// the residual at ẏ=0 into ydot (exploiting linearity; negated at the
// end per the spec's own note on the sign convention), solve the
// bulk/(optionally particle) time-derivative block system, fill flux
// derivatives, then negate.
func (m *Model) consistentTimeDerivatives(t, timeFactor float64, secIdx int, y, ydot []float64, full bool) error {
	cfg, idx := m.cfg, m.idx

	// §9's open question: the affine section-time transform makes F
	// implicitly depend on t through timeFactor; this residual evaluation
	// carries no ∂F/∂t term, matching the spec's ẏ=0 RHS definition as
	// given, not independently re-derived here.
	m.Residual(secIdx, t, timeFactor, y, nil, ydot, false)

	if err := m.solveTimeDerivativeBlockSystem(timeFactor, ydot, full); err != nil {
		return err
	}

	foff := idx.OffsetJf()
	nFlux := cfg.NComp * cfg.NCol
	for i := 0; i < nFlux; i++ {
		ydot[foff+i] = 0
	}
	m.solveForFluxes(ydot)

	for i := range ydot {
		ydot[i] = -ydot[i]
	}
	return nil
}

// ConsistentInitialConditions is the full consistent-initialization
// procedure of §4.D.3: algebraic closure, then consistent time
// derivatives.
func (m *Model) ConsistentInitialConditions(t, timeFactor float64, secIdx int, y, ydot []float64, errorTol float64) error {
	if err := m.algebraicClosure(t, secIdx, y, errorTol); err != nil {
		return err
	}
	return m.consistentTimeDerivatives(t, timeFactor, secIdx, y, ydot, true)
}

// LeanConsistentInitialConditions is §4.D.4: skips the algebraic solve
// (y and ydot are left as the caller set them) and solves only the bulk
// blocks and fluxes.
func (m *Model) LeanConsistentInitialConditions(t, timeFactor float64, secIdx int, y, ydot []float64) error {
	return m.consistentTimeDerivatives(t, timeFactor, secIdx, y, ydot, false)
}

// sensitivityAlgebraicClosure solves the linearized algebraic part of
// each particle shell (§4.D.5): the algebraic-block square sub-matrix,
// copied from jacP[k], against RHS −∂F/∂p minus the already-known
// coupling of s into that row (cp and any differential bound states of
// the same shell — this binding-model shape never couples algebraic
// rows across shells or column cells).
func (m *Model) sensitivityAlgebraicClosure(dFdp, s []float64) error {
	if !m.bnd.HasAlgebraicEquations() {
		return nil
	}
	cfg, idx := m.cfg, m.idx
	start, length := m.bnd.GetAlgebraicBlock()
	strideShell := idx.StrideParShell()
	failures := make([]error, cfg.NCol)

	var wg sync.WaitGroup
	wg.Add(cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		k := k
		go func() {
			defer wg.Done()
			blockOff := idx.OffsetParBlock(k)
			for j := 0; j < cfg.NPar; j++ {
				localBase := j * strideShell

				sub := linalg.NewDense(length, length)
				rhs := make([]float64, length)
				for r := 0; r < length; r++ {
					localRow := localBase + cfg.NComp + start + r
					for c := 0; c < length; c++ {
						sub.Set(r, c, m.jacP[k].Get(localRow, localBase+cfg.NComp+start+c))
					}
					sum := dFdp[blockOff+localRow]
					lo, hi := m.jacP[k].RowRange(localRow)
					for col := lo; col < hi; col++ {
						if col >= localBase+cfg.NComp+start && col < localBase+cfg.NComp+start+length {
							continue
						}
						sum += m.jacP[k].Get(localRow, col) * s[blockOff+col]
					}
					rhs[r] = -sum
				}

				solved, err := linalg.SolveDense(sub, rhs)
				if err != nil {
					failures[k] = &grmerr.LinearSolveFatal{Reason: fmt.Sprintf("sensitivity algebraic block singular at column %d shell %d: %v", k, j, err)}
					return
				}
				for r := 0; r < length; r++ {
					s[blockOff+localBase+cfg.NComp+start+r] = solved[r]
				}
			}
		}()
	}
	wg.Wait()
	for _, err := range failures {
		if err != nil {
			return err
		}
	}
	return nil
}

// ConsistentSensitivities computes one sensitivity direction's
// consistent (s, ṡ) pair in place, per §4.D.5: the AD-directional
// ∂F/∂p (adParamResidual), the per-shell algebraic sub-solve, flux
// closure on s minus the flux rows of ∂F/∂p, forming ṡ_dot ← −∂F/∂p − J·s, the same bulk/
// (optionally particle) time-derivative block solve as §4.D.3 step 2,
// and a final flux closure on ṡ_dot. Unlike the plain consistent-ẏ
// solve, this path does not negate at the end.
func (m *Model) ConsistentSensitivities(t, timeFactor float64, secIdx int, y []float64, dir ParamDirection, s, sdot []float64, full bool) error {
	cfg, idx := m.cfg, m.idx
	dFdp := m.adParamResidual(t, secIdx, timeFactor, y, dir)

	if err := m.sensitivityAlgebraicClosure(dFdp, s); err != nil {
		return err
	}

	foff := idx.OffsetJf()
	nFlux := cfg.NComp * cfg.NCol
	m.solveForFluxes(s)
	for i := 0; i < nFlux; i++ {
		s[foff+i] -= dFdp[foff+i]
	}

	for i := range sdot {
		sdot[i] = -dFdp[i]
	}
	m.MultiplyWithJacobian(s, -1, 1, sdot)

	if err := m.solveTimeDerivativeBlockSystem(timeFactor, sdot, full); err != nil {
		return err
	}

	for i := 0; i < nFlux; i++ {
		sdot[foff+i] = 0
	}
	m.solveForFluxes(sdot)
	return nil
}
