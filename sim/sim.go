// Package sim implements the Simulator/time driver of spec §4.E: the
// section loop, the affine section-time transformation, and the
// callback glue that turns the transformed, unit-per-section clock the
// BDF stepper marches in into the real time and real time-derivative
// scale the Model's residual expects.
//
// The section loop and per-section/total elapsed-time reporting are
// grounded on mna/solve.go's Soluv time-stepping loop and the
// StampTime bookkeeping of types/stamp.go (Time/TimeStep/MaxTimeStep/
// GoodIterations), generalized from a single fixed-step transient loop
// to the spec's section-wise, discontinuity-aware, BDF-driven one.
package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"grmcore/ad"
	"grmcore/bdf"
	"grmcore/grmerr"
	"grmcore/gmres"
	"grmcore/model"
	"grmcore/recorder"
)

// ConsistentInitMode selects which of model's three consistent-
// initialization routines runs at a section boundary.
type ConsistentInitMode int

const (
	Full ConsistentInitMode = iota
	Lean
	Skip
)

// Config carries the Simulator's own state (spec §4.E "State"):
// section boundaries (AD-valued so a section length can be a
// sensitivity direction), continuity flags, recorded solution times,
// tolerances, and BDF step-size/order controls.
type Config struct {
	SectionTimes      []ad.Value // len = nSections+1, strictly increasing in .V
	SectionContinuity []bool     // len = nSections-1; false at i means reset before section i+1

	SolutionTimes []float64 // real time, strictly increasing

	RelTol, AbsTol, AlgebraicTol float64
	InitialStepSize              float64
	MaxStepCount                 uint
	MaxOrder                     int

	ConsistentInitMode ConsistentInitMode
	GMRES              gmres.Params
}

// Report is returned after a full run: per-section and total elapsed
// wall-clock time (spec §4.E item 4), plus the BDF statistics of the
// last section run, for logging/diagnostics.
type Report struct {
	SectionElapsed []time.Duration
	Total          time.Duration
	LastStats      bdf.Statistics
}

// Simulator drives a model.Model through the section-wise, time-
// transformed BDF integration of spec §4.E, recording solution samples
// via an ISolutionRecorder.
type Simulator struct {
	m   *model.Model
	rec recorder.Recorder
	log *logrus.Entry
}

func New(m *model.Model, rec recorder.Recorder) *Simulator {
	return &Simulator{m: m, rec: rec, log: logrus.WithField("component", "sim")}
}

// transform computes the unit-length transformed-time boundaries and
// the per-section timeFactor = d(real time)/d(transformed time), the
// section width. Carrying sectionTimes as ad.Value lets a caller read
// timeFactor[i].GetADValue(dir) to recover ∂timeFactor/∂(section
// endpoint) along any direction it seeded — genuine AD rather than a
// finite difference, as in the binding-model Jacobian and model's
// parameter-sensitivity residual (see DESIGN.md's Open Question entry
// on AD scope).
func transform(sectionTimes []ad.Value) (transformedBounds []float64, timeFactor []ad.Value) {
	n := len(sectionTimes) - 1
	transformedBounds = make([]float64, n+1)
	timeFactor = make([]ad.Value, n)
	for i := 0; i < n; i++ {
		timeFactor[i] = sectionTimes[i+1].Sub(sectionTimes[i])
		transformedBounds[i+1] = transformedBounds[i] + 1.0
	}
	return transformedBounds, timeFactor
}

// toRealTime maps a transformed-clock time within section i back to
// real time via the affine map: sectionTimes[i] + (tt - boundary[i])*width.
func toRealTime(sectionStart float64, boundaryStart float64, width float64, tt float64) float64 {
	return sectionStart + (tt-boundaryStart)*width
}

// Run executes the full section loop of spec §4.E's main loop,
// marching y/ydot (owned by the caller, per §3's lifecycle split) from
// the first section boundary to the last, recording samples at every
// entry in cfg.SolutionTimes.
func (s *Simulator) Run(cfg Config, y, ydot []float64) (Report, error) {
	if len(cfg.SectionTimes) < 2 {
		return Report{}, &grmerr.InvalidParameter{Name: "SectionTimes", Err: fmt.Errorf("need at least 2 boundaries, got %d", len(cfg.SectionTimes))}
	}
	nSections := len(cfg.SectionTimes) - 1
	boundaries, timeFactor := transform(cfg.SectionTimes)

	report := Report{SectionElapsed: make([]time.Duration, nSections)}
	overallStart := time.Now()

	switch cfg.ConsistentInitMode {
	case Full:
		if err := s.m.ConsistentInitialConditions(cfg.SectionTimes[0].V, timeFactor[0].V, 0, y, ydot, cfg.AlgebraicTol); err != nil {
			return report, err
		}
	case Lean:
		if err := s.m.LeanConsistentInitialConditions(cfg.SectionTimes[0].V, timeFactor[0].V, 0, y, ydot); err != nil {
			return report, err
		}
	case Skip:
	}

	var lastStats bdf.Statistics
	for i := 0; i < nSections; i++ {
		sectionStart := time.Now()

		if i > 0 && !cfg.SectionContinuity[i-1] {
			if cfg.ConsistentInitMode != Skip {
				realT := cfg.SectionTimes[i].V
				var err error
				if cfg.ConsistentInitMode == Full {
					err = s.m.ConsistentInitialConditions(realT, timeFactor[i].V, i, y, ydot, cfg.AlgebraicTol)
				} else {
					err = s.m.LeanConsistentInitialConditions(realT, timeFactor[i].V, i, y, ydot)
				}
				if err != nil {
					return report, err
				}
			}
		}

		secIdx := i
		width := timeFactor[i].V
		boundaryStart := boundaries[i]
		sectionRealStart := cfg.SectionTimes[i].V

		residualFn := func(sec int, tt, tf float64, yy, yydot, res []float64, wantJac bool) {
			realT := toRealTime(sectionRealStart, boundaryStart, width, tt)
			s.m.Residual(secIdx, realT, tf, yy, yydot, res, wantJac)
		}
		fluxOff := s.m.Layout().OffsetJf()
		nFlux := s.m.Layout().NComp * s.m.Layout().NCol
		linearSolveFn := func(alpha, tf float64, b, weights []float64) int {
			err := s.m.LinearSolve(alpha, tf, b, weights[fluxOff:fluxOff+nFlux], cfg.GMRES)
			return grmerr.LinearSolveCode(err)
		}

		stepper := bdf.New(s.m.NumDofs(), residualFn, linearSolveFn)
		bdfCfg := bdf.Config{
			InitialStepSize:   cfg.InitialStepSize,
			AbsoluteTolerance: cfg.AbsTol,
			RelativeTolerance: cfg.RelTol,
			MaxStepCount:      cfg.MaxStepCount,
			MaxOrder:          cfg.MaxOrder,
		}

		sectionEnd := boundaries[i+1]
		tt := boundaries[i]
		for _, solT := range cfg.SolutionTimes {
			if solT < sectionRealStart || solT > sectionRealStart+width {
				continue
			}
			targetTT := boundaryStart + (solT-sectionRealStart)/width
			if targetTT > sectionEnd {
				targetTT = sectionEnd
			}
			if targetTT < tt || (targetTT == tt && i > 0) {
				continue
			}
			if targetTT > tt {
				stats, err := stepper.Integrate(secIdx, tt, targetTT, width, y, ydot, bdfCfg)
				lastStats = stats
				if err != nil {
					return report, err
				}
				tt = targetTT
			}
			s.record(solT, y)
		}
		if tt < sectionEnd {
			stats, err := stepper.Integrate(secIdx, tt, sectionEnd, width, y, ydot, bdfCfg)
			lastStats = stats
			if err != nil {
				return report, err
			}
		}

		report.SectionElapsed[i] = time.Since(sectionStart)
	}

	report.Total = time.Since(overallStart)
	report.LastStats = lastStats
	return report, nil
}

// record pushes one sample to the recorder, slicing y into the bulk/
// particle/flux regions the recorder.Snapshot contract expects.
func (s *Simulator) record(t float64, y []float64) {
	idx := s.m.Layout()
	bulkLen := idx.OffsetParBlock(0)
	fluxStart := idx.OffsetJf()
	s.rec.Record(recorder.Snapshot{
		Time: t,
		Bulk: y[:bulkLen],
		Par:  y[bulkLen:fluxStart],
		Flux: y[fluxStart:],
	})
}
