package model

import (
	"math"
	"testing"

	"grmcore/binding"
	"grmcore/gmres"
)

func newTestModel(t *testing.T) (*Model, *Config) {
	t.Helper()
	cfg := &Config{
		NComp: 1, NCol: 2, NPar: 2,
		ColLength: 1, Velocity: 1, ColDispersion: []float64{0.01},
		ParRadius: 0.1, BetaP: 0.5, ParDiffusion: []float64{1e-3}, FilmDiffusion: []float64{1e-2},
		BulkPorosity: 0.4,
		InletConcentration: func(t float64, comp int) float64 { return 1.0 },
	}
	bnd := &binding.Linear{Ka: []float64{1}, Kd: []float64{1}}
	return New(cfg, bnd), cfg
}

func TestSolveForFluxesIdempotent(t *testing.T) {
	m, _ := newTestModel(t)
	y := make([]float64, m.NumDofs())
	for i := range y {
		y[i] = 0.1 * float64(i+1)
	}

	m.solveForFluxes(y)
	once := append([]float64(nil), y...)
	m.solveForFluxes(y)

	for i := range y {
		if math.Abs(y[i]-once[i]) > 1e-12 {
			t.Fatalf("solveForFluxes not idempotent at %d: %v vs %v", i, once[i], y[i])
		}
	}
}

func TestLinearSolveConverges(t *testing.T) {
	m, _ := newTestModel(t)
	n := m.NumDofs()
	y := make([]float64, n)
	for i := range y {
		y[i] = 0.1 + 0.01*float64(i)
	}
	res := make([]float64, n)
	m.Residual(0, 0, 1.0, y, nil, res, true)

	b := make([]float64, n)
	for i := range b {
		b[i] = 1.0
	}
	nFlux := m.cfg.NCol * m.cfg.NComp
	weights := make([]float64, nFlux)
	for i := range weights {
		weights[i] = 1.0
	}

	err := m.LinearSolve(1.0, 1.0, b, weights, gmres.Params{Restart: nFlux, MaxIter: 10 * nFlux, OuterTol: 1e-10, SchurSafety: 1.0})
	if err != nil {
		t.Fatalf("LinearSolve: %v", err)
	}
	for i, v := range b {
		if math.IsNaN(v) {
			t.Fatalf("solution component %d is NaN", i)
		}
	}
}

func TestConsistentInitialConditionsRuns(t *testing.T) {
	m, _ := newTestModel(t)
	n := m.NumDofs()
	y := make([]float64, n)
	idx := m.Layout()
	for c := 0; c < 1; c++ {
		for k := 0; k < 2; k++ {
			y[idx.OffsetBulkComp(c)+k] = 1.0
		}
	}
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			base := idx.OffsetParShell(k, j)
			y[base] = 1.0
		}
	}
	ydot := make([]float64, n)

	if err := m.ConsistentInitialConditions(0, 1.0, 0, y, ydot, 1e-10); err != nil {
		t.Fatalf("ConsistentInitialConditions: %v", err)
	}

	res := make([]float64, n)
	m.Residual(0, 0, 1.0, y, ydot, res, false)
	for i, r := range res {
		if math.Abs(r) > 1e-6 {
			t.Errorf("residual[%d] = %v, want ~0 after consistent init", i, r)
		}
	}
}
