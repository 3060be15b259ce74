package model

import (
	"github.com/sirupsen/logrus"

	"grmcore/binding"
	"grmcore/indexer"
	"grmcore/linalg"
)

// Model is the GeneralRateModel engine. All mutable working buffers
// (Jacobian storage, tempState) are exclusively owned here, per §3's
// lifecycle note; state vectors y/ydot are owned by the caller (the
// Simulator, package sim).
type Model struct {
	cfg *Config
	bnd binding.Model
	idx indexer.Layout

	jacC     []*linalg.Banded            // [nComp], bulk bands
	jacCdisc []*linalg.FactorizableBanded // [nComp]
	jacP     []*linalg.Banded            // [nCol], particle bands
	jacPdisc []*linalg.FactorizableBanded // [nCol]

	jacFC, jacCF *linalg.Sparse
	jacFP, jacPF []*linalg.Sparse // [nCol]

	// tempState is the shared scratch arena for per-shell algebraic
	// initialization (§5's shared-resource policy); sized for the
	// largest concurrent demand across NCol parallel shells.
	tempState []float64

	factorizeJacobian bool

	log *logrus.Entry
}

// New builds a Model and allocates all Jacobian and scratch storage for
// the given configuration and binding model (spec's "initialize"
// lifecycle phase, §3).
func New(cfg *Config, bnd binding.Model) *Model {
	idx := cfg.Layout(bnd)
	m := &Model{cfg: cfg, bnd: bnd, idx: idx, log: logrus.WithField("component", "model")}

	m.jacC = make([]*linalg.Banded, cfg.NComp)
	m.jacCdisc = make([]*linalg.FactorizableBanded, cfg.NComp)
	for c := 0; c < cfg.NComp; c++ {
		m.jacC[c] = linalg.NewBanded(cfg.NCol, 1, 1)
		m.jacCdisc[c] = linalg.NewFactorizableBanded(cfg.NCol, 1, 1)
	}

	shellStride := idx.StrideParShell()
	bw := shellStride // generous bandwidth: adjacent-shell + within-shell coupling
	m.jacP = make([]*linalg.Banded, cfg.NCol)
	m.jacPdisc = make([]*linalg.FactorizableBanded, cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		n := idx.StrideParBlock()
		m.jacP[k] = linalg.NewBanded(n, bw, bw)
		m.jacPdisc[k] = linalg.NewFactorizableBanded(n, bw, bw)
	}

	m.jacFC = linalg.NewSparse(cfg.NCol*cfg.NComp, cfg.NCol*cfg.NComp)
	m.jacCF = linalg.NewSparse(cfg.NCol*cfg.NComp, cfg.NCol*cfg.NComp)
	m.jacFP = make([]*linalg.Sparse, cfg.NCol)
	m.jacPF = make([]*linalg.Sparse, cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		m.jacFP[k] = linalg.NewSparse(cfg.NCol*cfg.NComp, idx.StrideParBlock())
		m.jacPF[k] = linalg.NewSparse(idx.StrideParBlock(), cfg.NCol*cfg.NComp)
	}

	wsPerShell := bnd.ConsistentInitializationWorkspaceSize() + shellStride*shellStride
	m.tempState = make([]float64, cfg.NCol*wsPerShell)

	m.factorizeJacobian = true
	return m
}

func (m *Model) Layout() indexer.Layout { return m.idx }

// NumDofs is the size of the state vector this Model expects.
func (m *Model) NumDofs() int { return m.idx.NumDofs() }

// NeedsFactorize reports the _factorizeJacobian invariant of §3.
func (m *Model) NeedsFactorize() bool { return m.factorizeJacobian }

// MarkDirty sets _factorizeJacobian, e.g. after scribbling over
// jacPdisc/jacCdisc as scratch (§4.D.6).
func (m *Model) MarkDirty() { m.factorizeJacobian = true }
