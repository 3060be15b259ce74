package model

import "grmcore/ad"

// ADConfig mirrors the differentiable physical parameters of Config as
// ad.Value, so one residual evaluation against a seeded ADConfig carries
// both the plain residual value and its directional derivative w.r.t.
// the seeded parameter group (§4.D.1's "fill AD seeds so that after
// evaluation adRes carries parameter-sensitivity columns").
//
// Topology (NComp/NCol/NPar) and InletConcentration are not sensitivity
// targets and stay out of this mirror; every field here lines up 1:1
// with a differentiable field of Config.
type ADConfig struct {
	ColLength, Velocity ad.Value
	ColDispersion       []ad.Value

	ParRadius, BetaP ad.Value
	ParDiffusion     []ad.Value
	FilmDiffusion    []ad.Value

	BulkPorosity ad.Value
}

// ParamDirection seeds one or more fields of an AD-lifted config with a
// nonzero directional derivative along direction 0, encoding a sensitive-
// parameter group: a single field for a plain parameter sensitivity, or
// several fields (each via SetADValue with its own factor) for a linear
// combination sharing one AD direction.
type ParamDirection func(c *ADConfig)

// liftConfig builds the AD mirror of cfg with every direction zeroed
// (a constant w.r.t. all nDirs directions until a ParamDirection seeds
// the ones it cares about).
func liftConfig(cfg *Config, nDirs int) *ADConfig {
	lift := func(v float64) ad.Value { return ad.New(v, nDirs) }
	liftSlice := func(v []float64) []ad.Value {
		out := make([]ad.Value, len(v))
		for i, x := range v {
			out[i] = lift(x)
		}
		return out
	}
	return &ADConfig{
		ColLength: lift(cfg.ColLength), Velocity: lift(cfg.Velocity),
		ColDispersion: liftSlice(cfg.ColDispersion),
		ParRadius:     lift(cfg.ParRadius), BetaP: lift(cfg.BetaP),
		ParDiffusion:  liftSlice(cfg.ParDiffusion),
		FilmDiffusion: liftSlice(cfg.FilmDiffusion),
		BulkPorosity:  lift(cfg.BulkPorosity),
	}
}

func (c *ADConfig) cellSpacing(nCol int) ad.Value { return c.ColLength.MulC(1 / float64(nCol)) }
func (c *ADConfig) shellSpacing(nPar int) ad.Value { return c.ParRadius.MulC(1 / float64(nPar)) }

func (c *ADConfig) surfaceFactor() ad.Value {
	three := ad.New(3, c.ParRadius.NDirs())
	return three.Div(c.ParRadius.Mul(c.BetaP))
}

func (c *ADConfig) filmFactor() ad.Value {
	nDirs := c.BulkPorosity.NDirs()
	one := ad.New(1, nDirs)
	three := ad.New(3, nDirs)
	num := three.Mul(one.Sub(c.BulkPorosity))
	den := c.BulkPorosity.Mul(c.ParRadius)
	return num.Div(den)
}

// adParamResidual evaluates the DAE residual at ẏ=0 with cfg's physical
// parameters carried as AD values seeded along dir, so that
// GetADValue(0) of the result is ∂F/∂p for that direction — the genuine
// directional derivative §4.D.5's sensitivity RHS is built from, in
// place of a finite-difference stand-in. y is held fixed (lifted as a
// zero-gradient constant), matching the partial derivative §4.D.5 asks
// for at the current state.
func (m *Model) adParamResidual(t float64, secIdx int, timeFactor float64, y []float64, dir ParamDirection) []float64 {
	n := m.idx.NumDofs()
	c := liftConfig(m.cfg, 1)
	dir(c)

	adRes := make([]ad.Value, n)
	m.adResidualBulk(c, t, timeFactor, y, adRes)
	m.adResidualParticle(c, secIdx, t, timeFactor, y, adRes)
	m.adResidualFlux(c, y, adRes)

	dFdp := make([]float64, n)
	for i, v := range adRes {
		dFdp[i] = v.GetADValue(0)
	}
	return dFdp
}

// adResidualBulk is residualBulk's formula re-derived in ad.Value
// arithmetic over the seeded parameter config; it fills only the
// residual value (no Jacobian assembly is needed for a parameter
// sensitivity RHS).
func (m *Model) adResidualBulk(c *ADConfig, t, timeFactor float64, y []float64, res []ad.Value) {
	cfg, idx := m.cfg, m.idx
	nDirs := c.Velocity.NDirs()
	h := c.cellSpacing(cfg.NCol)
	phi := c.filmFactor()

	for comp := 0; comp < cfg.NComp; comp++ {
		dax := c.ColDispersion[comp]
		for k := 0; k < cfg.NCol; k++ {
			row := idx.OffsetBulkComp(comp) + k
			ck := ad.New(y[row], nDirs)
			var cPrev, cNext ad.Value
			if k == 0 {
				cPrev = ad.New(cfg.InletConcentration(t, comp), nDirs)
			} else {
				cPrev = ad.New(y[row-1], nDirs)
			}
			if k == cfg.NCol-1 {
				cNext = ck
			} else {
				cNext = ad.New(y[row+1], nDirs)
			}

			conv := c.Velocity.Div(h).MulC(timeFactor).Mul(ck.Sub(cPrev))
			lap := cNext.Sub(ck.MulC(2)).Add(cPrev)
			disp := dax.Div(h.Mul(h)).MulC(timeFactor).Mul(lap)
			jf := ad.New(y[idx.OffsetJfComp(comp)+k], nDirs)

			res[row] = conv.Neg().Add(disp).Sub(phi.Mul(jf))
		}
	}
}

// adResidualParticle is residualParticle's formula re-derived in
// ad.Value arithmetic. The binding-model contribution does not depend on
// any field of ADConfig, so it lifts as a zero-gradient constant: the
// correct directional derivative whenever the seeded direction is a
// transport parameter rather than a binding-model one.
func (m *Model) adResidualParticle(c *ADConfig, secIdx int, t, timeFactor float64, y []float64, res []ad.Value) {
	cfg, idx := m.cfg, m.idx
	nDirs := c.Velocity.NDirs()
	hp := c.shellSpacing(cfg.NPar)
	surf := c.surfaceFactor()
	strideShell := idx.StrideParShell()

	for k := 0; k < cfg.NCol; k++ {
		for j := 0; j < cfg.NPar; j++ {
			base := idx.OffsetParShell(k, j)
			cp := y[base : base+cfg.NComp]
			q := y[base+cfg.NComp : base+strideShell]

			bindRes := make([]float64, idx.StrideBound())
			m.bnd.Residual(t, 0, 0, secIdx, cp, q, bindRes, false, nil, nil)

			for comp := 0; comp < cfg.NComp; comp++ {
				row := base + comp
				ccur := ad.New(cp[comp], nDirs)
				var cPrev, cNext ad.Value
				hasPrev, hasNext := j > 0, j < cfg.NPar-1
				if hasPrev {
					cPrev = ad.New(y[row-strideShell], nDirs)
				} else {
					cPrev = ccur
				}
				if hasNext {
					cNext = ad.New(y[row+strideShell], nDirs)
				} else {
					cNext = ccur
				}
				lap := cPrev.Sub(ccur.MulC(2)).Add(cNext).Div(hp.Mul(hp))
				val := c.ParDiffusion[comp].Mul(lap).MulC(-timeFactor)
				if j == cfg.NPar-1 {
					jf := ad.New(y[idx.OffsetJfComp(comp)+k], nDirs)
					val = val.Sub(surf.Mul(jf))
				}
				res[row] = val
			}

			for b := 0; b < idx.StrideBound(); b++ {
				res[base+cfg.NComp+b] = ad.New(bindRes[b], nDirs)
			}
		}
	}
}

// adResidualFlux is residualFlux's formula re-derived in ad.Value
// arithmetic, so a FilmDiffusion-seeded direction's ∂F/∂p is genuine
// here too.
func (m *Model) adResidualFlux(c *ADConfig, y []float64, res []ad.Value) {
	cfg, idx := m.cfg, m.idx
	nDirs := c.Velocity.NDirs()
	outerShell := cfg.NPar - 1

	for comp := 0; comp < cfg.NComp; comp++ {
		kf := c.FilmDiffusion[comp]
		for k := 0; k < cfg.NCol; k++ {
			row := idx.OffsetJfComp(comp) + k
			cBulk := ad.New(y[idx.OffsetBulkComp(comp)+k], nDirs)
			cpOuter := ad.New(y[idx.OffsetParShell(k, outerShell)+comp], nDirs)
			jf := ad.New(y[row], nDirs)
			res[row] = jf.Sub(kf.Mul(cBulk.Sub(cpOuter)))
		}
	}
}
