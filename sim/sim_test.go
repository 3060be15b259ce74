package sim

import (
	"math"
	"testing"

	"grmcore/ad"
	"grmcore/binding"
	"grmcore/gmres"
	"grmcore/model"
	"grmcore/recorder"
)

func newTestSimulator(t *testing.T) (*Simulator, *model.Model) {
	t.Helper()
	cfg := &model.Config{
		NComp: 1, NCol: 3, NPar: 2,
		ColLength: 1, Velocity: 1, ColDispersion: []float64{0.01},
		ParRadius: 0.1, BetaP: 0.5, ParDiffusion: []float64{1e-3}, FilmDiffusion: []float64{1e-2},
		BulkPorosity: 0.4,
		InletConcentration: func(t float64, comp int) float64 {
			if t < 5 {
				return 1.0
			}
			return 0.0
		},
	}
	bnd := &binding.Linear{Ka: []float64{1}, Kd: []float64{1}}
	m := model.New(cfg, bnd)
	rec := &recorder.Memory{}
	return New(m, rec), m
}

func TestRunSingleSectionRecordsSamples(t *testing.T) {
	s, m := newTestSimulator(t)
	n := m.NumDofs()
	y := make([]float64, n)
	ydot := make([]float64, n)

	nFlux := m.Layout().NComp * m.Layout().NCol
	cfg := Config{
		SectionTimes:      []ad.Value{ad.New(0, 0), ad.New(10, 0)},
		SectionContinuity: nil,
		SolutionTimes:     []float64{2, 5, 8, 10},
		RelTol:            1e-4, AbsTol: 1e-6, AlgebraicTol: 1e-10,
		InitialStepSize: 1e-3, MaxStepCount: 20000, MaxOrder: 3,
		ConsistentInitMode: Full,
		GMRES:              gmres.Params{Restart: nFlux, MaxIter: 50 * nFlux, OuterTol: 1e-8, SchurSafety: 1.0},
	}

	report, err := s.Run(cfg, y, ydot)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.SectionElapsed) != 1 {
		t.Fatalf("expected 1 section elapsed entry, got %d", len(report.SectionElapsed))
	}

	mem := s.rec.(*recorder.Memory)
	if len(mem.Snapshots) != 4 {
		t.Fatalf("expected 4 recorded samples, got %d", len(mem.Snapshots))
	}
	for _, snap := range mem.Snapshots {
		for _, v := range snap.Bulk {
			if math.IsNaN(v) {
				t.Fatalf("NaN in recorded bulk concentration at t=%v", snap.Time)
			}
		}
	}
}

func TestSectionDiscontinuityResetsConsistently(t *testing.T) {
	s, m := newTestSimulator(t)
	n := m.NumDofs()
	y := make([]float64, n)
	ydot := make([]float64, n)

	nFlux := m.Layout().NComp * m.Layout().NCol
	cfg := Config{
		SectionTimes:      []ad.Value{ad.New(0, 0), ad.New(5, 0), ad.New(10, 0)},
		SectionContinuity: []bool{false},
		SolutionTimes:     []float64{1, 6, 9},
		RelTol:            1e-4, AbsTol: 1e-6, AlgebraicTol: 1e-10,
		InitialStepSize: 1e-3, MaxStepCount: 20000, MaxOrder: 3,
		ConsistentInitMode: Full,
		GMRES:              gmres.Params{Restart: nFlux, MaxIter: 50 * nFlux, OuterTol: 1e-8, SchurSafety: 1.0},
	}

	if _, err := s.Run(cfg, y, ydot); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range y {
		if math.IsNaN(v) {
			t.Fatalf("y[%d] is NaN after a run crossing a section discontinuity", i)
		}
	}

	// Re-running full consistent initialization on a copy of the end-of-run
	// state (section 1, t=5) must leave the algebraic (flux) residual at zero.
	y2 := append([]float64(nil), y...)
	ydot2 := make([]float64, n)
	if err := m.ConsistentInitialConditions(5, 5, 1, y2, ydot2, 1e-10); err != nil {
		t.Fatalf("ConsistentInitialConditions at reset boundary: %v", err)
	}
	res := make([]float64, n)
	m.Residual(1, 5, 5, y2, nil, res, false)
	idx := m.Layout()
	for c := 0; c < idx.NComp; c++ {
		for k := 0; k < idx.NCol; k++ {
			row := idx.OffsetJfComp(c) + k
			if math.Abs(res[row]) > 1e-6 {
				t.Errorf("flux residual[%d] = %v right after reset, want ~0", row, res[row])
			}
		}
	}
}

func TestTimeFactorCarriesSectionLengthDerivative(t *testing.T) {
	end := ad.Seed(10, 2, 1)
	bounds, tf := transform([]ad.Value{ad.New(0, 2), end})
	if len(bounds) != 2 || bounds[1] != 1.0 {
		t.Fatalf("unexpected transformed bounds: %v", bounds)
	}
	if tf[0].V != 10 {
		t.Fatalf("timeFactor value = %v, want 10", tf[0].V)
	}
	if tf[0].GetADValue(1) != 1.0 {
		t.Fatalf("timeFactor d/d(section end) = %v, want 1", tf[0].GetADValue(1))
	}
}
