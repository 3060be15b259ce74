package binding

import (
	"fmt"

	"grmcore/ad"
	"grmcore/linalg"
)

// Langmuir is a multi-component competitive Langmuir isotherm, one bound
// state per component sharing a common site pool:
//
//	rate_i = ka_i*c_i*(qmax_i - Σ_j q_j) - kd_i*q_i
//
// When Algebraic is true the bound states are quasi-stationary (rate_i =
// 0 is an algebraic constraint, §4.C/§4.D.3 Step 1 and the E2 scenario);
// otherwise it is the ordinary kinetic ODE dq_i/dt = rate_i.
//
// The Jacobian of rate is obtained via forward-mode AD (package ad)
// rather than hand-differentiated, per §4.C's "may use AD for local
// Jacobian" and §9's design note that the per-shell algebraic solve is
// one of the two places the engine must be generic over real/AD.
type Langmuir struct {
	Ka, Kd, Qmax []float64 // length NComp
	Algebraic    bool
}

func (lm *Langmuir) NComp() int { return len(lm.Ka) }

func (lm *Langmuir) NBound() []int {
	n := make([]int, len(lm.Ka))
	for i := range n {
		n[i] = 1
	}
	return n
}

func (lm *Langmuir) StrideBound() int { return len(lm.Ka) }

func (lm *Langmuir) HasAlgebraicEquations() bool { return lm.Algebraic }

func (lm *Langmuir) GetAlgebraicBlock() (int, int) {
	if !lm.Algebraic {
		return 0, 0
	}
	return 0, lm.StrideBound()
}

func (lm *Langmuir) ConsistentInitializationWorkspaceSize() int {
	n := lm.StrideBound()
	return n * n // the per-shell Newton solve keeps its residual in the first n entries; its Jacobian is denseJac
}

// rateAD evaluates rate_i(c,q) as an ad.Value carrying derivatives with
// respect to all NComp+StrideBound inputs (c first, then q), seeded by
// the caller.
func (lm *Langmuir) rateAD(i int, c, q []ad.Value) ad.Value {
	n := lm.NComp()
	occSum := ad.New(0, c[0].NDirs())
	for j := 0; j < n; j++ {
		occSum = occSum.Add(q[j])
	}
	free := ad.New(lm.Qmax[i], c[0].NDirs()).Sub(occSum)
	return c[i].MulC(lm.Ka[i]).Mul(free).Sub(q[i].MulC(lm.Kd[i]))
}

// seeded builds AD vectors for c and q, seeding every direction (used
// when a full dense Jacobian is needed) or none (plain evaluation).
func (lm *Langmuir) seeded(cp, q []float64, withJac bool) (c, qv []ad.Value) {
	n := lm.NComp()
	nDirs := 0
	if withJac {
		nDirs = 2 * n
	}
	c = make([]ad.Value, n)
	qv = make([]ad.Value, n)
	for i := 0; i < n; i++ {
		if withJac {
			c[i] = ad.Seed(cp[i], nDirs, i)
			qv[i] = ad.Seed(q[i], nDirs, n+i)
		} else {
			c[i] = ad.New(cp[i], 0)
			qv[i] = ad.New(q[i], 0)
		}
	}
	return c, qv
}

func (lm *Langmuir) Residual(t, z, r float64, secIdx int, cp, q []float64, res []float64, wantJac bool, jacQ, jacCp *linalg.Dense) {
	n := lm.NComp()
	c, qv := lm.seeded(cp, q, wantJac)
	for i := 0; i < n; i++ {
		rate := lm.rateAD(i, c, qv)
		res[i] = -rate.V
		if wantJac {
			for j := 0; j < n; j++ {
				jacQ.Increment(i, j, -rate.GetADValue(n+j))
				jacCp.Increment(i, j, -rate.GetADValue(j))
			}
		}
	}
}

func (lm *Langmuir) JacobianAddDiscretized(alpha float64, jacQ *linalg.Dense) {
	if lm.Algebraic {
		return // algebraic rows carry no time-derivative contribution
	}
	n := lm.NComp()
	for i := 0; i < n; i++ {
		jacQ.Increment(i, i, alpha)
	}
}

// ConsistentInitialState solves rate_i(cp, q) = 0 for q by damped
// Newton iteration, reusing denseJac as the per-iteration dense
// Jacobian and workspace as the residual/update scratch — grounded on
// mna/solve.go's Soluv.Solve() damped Newton loop, adapted from a
// circuit-wide nonlinear solve to a single shell's small dense system.
func (lm *Langmuir) ConsistentInitialState(t, z, r float64, secIdx int, cp []float64, q []float64, tol float64, workspace []float64, denseJac *linalg.Dense) error {
	if !lm.Algebraic {
		return nil
	}
	n := lm.NComp()
	res := workspace[:n]
	const maxIter = 50
	damping := 1.0
	for iter := 0; iter < maxIter; iter++ {
		c, qv := lm.seeded(cp, q, true)
		denseJac.SetAll(0)
		maxAbs := 0.0
		for i := 0; i < n; i++ {
			rate := lm.rateAD(i, c, qv)
			res[i] = -rate.V
			if a := absf(res[i]); a > maxAbs {
				maxAbs = a
			}
			for j := 0; j < n; j++ {
				denseJac.Set(i, j, rate.GetADValue(n+j))
			}
		}
		if maxAbs < tol {
			return nil
		}
		delta, err := linalg.SolveDense(denseJac, res)
		if err != nil {
			return fmt.Errorf("binding: langmuir consistent init: singular Jacobian at col/shell")
		}
		for i := 0; i < n; i++ {
			q[i] += damping * delta[i]
		}
	}
	return fmt.Errorf("binding: langmuir consistent init did not converge to tol=%g", tol)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
