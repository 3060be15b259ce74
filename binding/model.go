// Package binding implements the binding-model capability interface of
// spec §4.C plus two concrete isotherms (linear, multi-component
// Langmuir) that exercise both the purely-differential and the
// quasi-stationary-algebraic code paths in package model.
//
// The interface shape (narrow, verb-named methods, default-by-zero-value
// behavior for hasAlgebraicEquations) is grounded on types/stamp.go's
// Stamp capability interface and element/base.go's Config
// empty-implementation-by-default hooks (Reset/StartIteration/Stamp/
// DoStep), translated from "stamp into a shared MNA matrix" to "evaluate
// a per-shell residual/Jacobian contribution."
package binding

import (
	"grmcore/linalg"
)

// Model is the pluggable binding-kinetics/isotherm contract consumed by
// package model. One Model instance is shared by every column cell and
// shell of one component group; per-shell state is passed in, not held.
type Model interface {
	// NComp is the number of liquid components this model binds.
	NComp() int
	// NBound is the number of bound states per component.
	NBound() []int
	// StrideBound is the total bound-state dof count, Σ NBound.
	StrideBound() int

	// HasAlgebraicEquations reports whether this model treats any bound
	// state as a quasi-stationary algebraic constraint rather than an
	// ODE.
	HasAlgebraicEquations() bool

	// GetAlgebraicBlock returns the contiguous [start, start+length) row
	// range within the bound-state block that is algebraic. Only valid
	// when HasAlgebraicEquations is true (spec assumes contiguity).
	GetAlgebraicBlock() (start, length int)

	// ConsistentInitializationWorkspaceSize is the scalar count of
	// doubles the per-shell algebraic solve in ConsistentInitialState
	// needs as scratch.
	ConsistentInitializationWorkspaceSize() int

	// ConsistentInitialState solves the algebraic part of one shell in
	// place, given fixed liquid concentrations cp, adjusting q so the
	// algebraic rows satisfy the residual to within tol. denseJac is
	// reused scratch (at least StrideBound^2 capacity; the model
	// assembles it internally per Newton iteration).
	ConsistentInitialState(t, z, r float64, secIdx int, cp []float64, q []float64, tol float64, workspace []float64, denseJac *linalg.Dense) error

	// Residual evaluates F_bind(t,z,r,secIdx,cp,q) into res (length
	// StrideBound). When wantJac, it also accumulates ∂res/∂q into jacQ
	// (StrideBound x StrideBound, added in place) and ∂res/∂cp into
	// jacCp (StrideBound x NComp, added in place).
	Residual(t, z, r float64, secIdx int, cp, q []float64, res []float64, wantJac bool, jacQ, jacCp *linalg.Dense)

	// JacobianAddDiscretized adds alpha on the diagonal of jacQ for every
	// differential (non-algebraic) bound-state row, i.e. alpha*∂F/∂q̇.
	// Algebraic rows get no time-derivative contribution.
	JacobianAddDiscretized(alpha float64, jacQ *linalg.Dense)
}
