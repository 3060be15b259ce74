package bdf

import (
	"errors"
	"math"
	"testing"

	"grmcore/grmerr"
)

// decayResidual evaluates F(y, ydot) = ydot + y, the DAE form of the
// scalar decay ODE y' = -y, for every component independently.
func decayResidual(_ int, _, _ float64, y, ydot, res []float64, _ bool) {
	for i := range res {
		res[i] = ydot[i] + y[i]
	}
}

// decayLinearSolve solves (1+alpha)x = b in place for every component,
// the exact Newton system for decayResidual's ∂F/∂y=1, ∂F/∂ẏ=1.
func decayLinearSolve(alpha, _ float64, b, _ []float64) int {
	for i := range b {
		b[i] /= 1 + alpha
	}
	return 0
}

func TestIntegrateMatchesExponentialDecay(t *testing.T) {
	s := New(1, decayResidual, decayLinearSolve)
	y := []float64{1}
	ydot := []float64{-1}
	cfg := Config{
		InitialStepSize:   1e-3,
		AbsoluteTolerance: 1e-8,
		RelativeTolerance: 1e-8,
		MaxStepCount:      100000,
		MaxOrder:          4,
	}

	stat, err := s.Integrate(0, 0, 2, 1, y, ydot, cfg)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	want := math.Exp(-2)
	if math.Abs(y[0]-want) > 1e-4 {
		t.Fatalf("y(2) = %v, want ~%v", y[0], want)
	}
	if stat.StepCount == 0 {
		t.Fatalf("expected a nonzero step count, got 0")
	}
	if stat.Order < 1 || stat.Order > cfg.MaxOrder {
		t.Fatalf("final order %d out of [1,%d]", stat.Order, cfg.MaxOrder)
	}
}

func TestIntegrateRespectsMultipleComponents(t *testing.T) {
	s := New(3, decayResidual, decayLinearSolve)
	y := []float64{1, 2, 0.5}
	ydot := []float64{-1, -2, -0.5}
	cfg := Config{
		InitialStepSize:   1e-3,
		AbsoluteTolerance: 1e-8,
		RelativeTolerance: 1e-8,
		MaxOrder:          3,
	}

	if _, err := s.Integrate(0, 0, 1, 1, y, ydot, cfg); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	for i, y0 := range []float64{1, 2, 0.5} {
		want := y0 * math.Exp(-1)
		if math.Abs(y[i]-want) > 1e-4 {
			t.Errorf("y[%d] = %v, want ~%v", i, y[i], want)
		}
	}
}

// fatalLinearSolve always reports the §7 abort code, -1.
func fatalLinearSolve(_, _ float64, b, _ []float64) int {
	return -1
}

func TestIntegrateReturnsFatalOnAbortCode(t *testing.T) {
	s := New(1, decayResidual, fatalLinearSolve)
	y := []float64{1}
	ydot := []float64{-1}
	cfg := Config{InitialStepSize: 1e-2}

	_, err := s.Integrate(0, 0, 1, 1, y, ydot, cfg)
	if err == nil {
		t.Fatalf("expected an error from a fatal linear solve")
	}
	var fatal *grmerr.LinearSolveFatal
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *grmerr.LinearSolveFatal, got %T: %v", err, err)
	}
}

// retryOnceLinearSolve reports the retry code on its first call only,
// then succeeds, exercising the step-halving retry path.
func retryOnceLinearSolve() LinearSolveFunc {
	tried := false
	return func(alpha, _ float64, b, _ []float64) int {
		if !tried {
			tried = true
			return 1
		}
		for i := range b {
			b[i] /= 1 + alpha
		}
		return 0
	}
}

func TestIntegrateHalvesStepOnRetryCode(t *testing.T) {
	s := New(1, decayResidual, retryOnceLinearSolve())
	y := []float64{1}
	ydot := []float64{-1}
	cfg := Config{InitialStepSize: 1e-2, AbsoluteTolerance: 1e-8, RelativeTolerance: 1e-8}

	if _, err := s.Integrate(0, 0, 0.5, 1, y, ydot, cfg); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	want := math.Exp(-0.5)
	if math.Abs(y[0]-want) > 1e-3 {
		t.Fatalf("y(0.5) = %v, want ~%v", y[0], want)
	}
}

func TestIntegrateFailsBelowMinStepSize(t *testing.T) {
	s := New(1, decayResidual, func(_, _ float64, b, _ []float64) int { return 1 })
	y := []float64{1}
	ydot := []float64{-1}
	cfg := Config{InitialStepSize: 1e-6, MinStepSize: 1e-4}

	_, err := s.Integrate(0, 0, 1, 1, y, ydot, cfg)
	if err == nil {
		t.Fatalf("expected an error when every step is rejected below MinStepSize")
	}
	var fail *grmerr.IntegrationFailure
	if !errors.As(err, &fail) {
		t.Fatalf("expected *grmerr.IntegrationFailure, got %T: %v", err, err)
	}
}
