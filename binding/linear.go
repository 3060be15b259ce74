package binding

import (
	"grmcore/linalg"
)

// Linear is a purely differential multi-component linear adsorption
// isotherm: dq_i/dt = ka_i*c_i - kd_i*q_i. One bound state per
// component; never algebraic, so it exercises the differential-only
// path through package model (§4.D.4's lean init is always valid here).
type Linear struct {
	Ka, Kd []float64 // length NComp
}

func (l *Linear) NComp() int { return len(l.Ka) }

func (l *Linear) NBound() []int {
	n := make([]int, len(l.Ka))
	for i := range n {
		n[i] = 1
	}
	return n
}

func (l *Linear) StrideBound() int { return len(l.Ka) }

func (l *Linear) HasAlgebraicEquations() bool                { return false }
func (l *Linear) GetAlgebraicBlock() (int, int)               { return 0, 0 }
func (l *Linear) ConsistentInitializationWorkspaceSize() int { return 0 }

// ConsistentInitialState is a no-op: a purely differential model has no
// algebraic rows to close during consistent initialization.
func (l *Linear) ConsistentInitialState(t, z, r float64, secIdx int, cp []float64, q []float64, tol float64, workspace []float64, denseJac *linalg.Dense) error {
	return nil
}

func (l *Linear) Residual(t, z, r float64, secIdx int, cp, q []float64, res []float64, wantJac bool, jacQ, jacCp *linalg.Dense) {
	n := l.NComp()
	for i := 0; i < n; i++ {
		rate := l.Ka[i]*cp[i] - l.Kd[i]*q[i]
		res[i] = -rate
		if wantJac {
			jacQ.Increment(i, i, l.Kd[i])
			jacCp.Increment(i, i, -l.Ka[i])
		}
	}
}

func (l *Linear) JacobianAddDiscretized(alpha float64, jacQ *linalg.Dense) {
	n := l.NComp()
	for i := 0; i < n; i++ {
		jacQ.Increment(i, i, alpha)
	}
}
