// Package indexer implements the fixed state-vector layout of spec §3:
// bulk concentrations, then per-cell particle liquid+solid blocks, then
// film fluxes, all in one contiguous []float64.
//
// No direct teacher analog exists (the circuit teacher addresses state
// by per-node voltage, not a stratified bulk/particle/flux layout); this
// follows §3 directly, with accessor names mirroring the offset-based
// style of mna/matrix.go's node-to-row mapping.
package indexer

// Layout describes the discretization sizes needed to compute offsets
// into the state vector.
type Layout struct {
	NComp  int
	NCol   int
	NPar   int
	NBound []int // per-component bound-state count
}

// StrideBound is the number of bound-state dofs per particle shell,
// Σ_comp NBound[comp].
func (l Layout) StrideBound() int {
	s := 0
	for _, nb := range l.NBound {
		s += nb
	}
	return s
}

// StrideParLiquid is the number of liquid-phase dofs per particle shell,
// equal to NComp.
func (l Layout) StrideParLiquid() int { return l.NComp }

// StrideParShell is the total dofs in one particle shell (liquid + bound).
func (l Layout) StrideParShell() int { return l.StrideParLiquid() + l.StrideBound() }

// StrideParBlock is the total dofs in one column cell's particle block
// (all shells of that cell).
func (l Layout) StrideParBlock() int { return l.NPar * l.StrideParShell() }

// StrideColComp is the stride between column cells within one bulk
// component (component-major storage, so this equals NCol).
func (l Layout) StrideColComp() int { return l.NCol }

// NumDofs is the total state-vector length.
func (l Layout) NumDofs() int {
	return l.NComp*l.NCol + l.NCol*l.StrideParBlock() + l.NCol*l.NComp
}

// OffsetBulk returns the offset of the bulk-concentration region (always 0).
func (l Layout) OffsetBulk() int { return 0 }

// OffsetBulkComp returns the offset of component comp's bulk-concentration
// column-cell array within the bulk region.
func (l Layout) OffsetBulkComp(comp int) int { return comp * l.StrideColComp() }

// OffsetParBlock returns the offset of column cell col's particle block.
func (l Layout) OffsetParBlock(col int) int {
	return l.NComp*l.NCol + col*l.StrideParBlock()
}

// OffsetCp returns the offset of column cell col's particle block
// (alias for OffsetParBlock, matching the spec's Indexer naming).
func (l Layout) OffsetCp(col int) int { return l.OffsetParBlock(col) }

// OffsetParShell returns the offset of shell j within column cell col.
func (l Layout) OffsetParShell(col, shell int) int {
	return l.OffsetParBlock(col) + shell*l.StrideParShell()
}

// OffsetBoundComp returns, within a shell's bound-state sub-block, the
// offset of component comp's first bound state.
func (l Layout) OffsetBoundComp(comp int) int {
	o := 0
	for c := 0; c < comp; c++ {
		o += l.NBound[c]
	}
	return o
}

// OffsetJf returns the offset of the film-flux region.
func (l Layout) OffsetJf() int {
	return l.NComp*l.NCol + l.NCol*l.StrideParBlock()
}

// OffsetJfComp returns the offset of component comp's flux column-cell array.
func (l Layout) OffsetJfComp(comp int) int {
	return l.OffsetJf() + comp*l.NCol
}

// LocalFluxIndex returns the 0-based index of column cell col's flux
// entry for comp within the flux region alone (i.e. OffsetJfComp(comp)+
// col - OffsetJf()), the indexing the flux-coupling sparse matrices
// (jacFC/jacCF/jacFP/jacPF) use for their flux-space row or column.
func (l Layout) LocalFluxIndex(comp, col int) int {
	return comp*l.NCol + col
}
