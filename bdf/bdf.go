// Package bdf implements a variable-order (1..5), variable-step backward
// differentiation formula stepper for the index-1 DAE systems produced
// by package model, driven entirely through a residual/linear-solve
// callback pair rather than owning any model-specific code.
//
// Grounded on grollinger-differential/ode's Config/Statistics shape and
// EstimateStepSize's weighted-error initial-step heuristic, and on
// solver/rk.go's embedded-pair accept/reject loop (weighted error
// quotient compared against 1.0, step-ratio safety interval, reject
// counter) — adapted from an explicit embedded Runge-Kutta pair's error
// estimate to a BDF predictor/corrector's error estimate, and from
// fixed order to order selection driven by the same error signal.
//
// The BDF corrector weights are recomputed every step from the actual
// recorded (t, y) history points: ẏ at the new point is the derivative
// of the polynomial through the new point and the k newest accepted
// points, so step-size changes are handled exactly without the
// Nordsieck-array rescaling a production DAE solver (e.g. CVODE/IDA)
// uses. The predictor is a Neville polynomial extrapolation through up
// to k+1 history points, one degree above the corrector, so the
// corrector/predictor difference serves as the local error estimate.
package bdf

import (
	"fmt"
	"math"

	"grmcore/grmerr"
)

// ResidualFunc evaluates the DAE residual (and, when wantJac, the
// analytic ∂F/∂y assembly model.Residual performs as a side effect).
type ResidualFunc func(secIdx int, t, timeFactor float64, y, ydot, res []float64, wantJac bool)

// LinearSolveFunc solves (∂F/∂y + alpha·∂F/∂ẏ) x = b in place on b,
// returning the §7 retry code: 0 success, +1 recoverable (retry with a
// smaller step), -1 fatal (abort).
type LinearSolveFunc func(alpha, timeFactor float64, b, weights []float64) int

// Config mirrors the ambient step-size/tolerance/iteration-budget
// controls of the teacher's ode.Config, narrowed to what a BDF
// predictor/corrector needs.
type Config struct {
	InitialStepSize float64
	MinStepSize     float64
	MaxStepSize     float64

	AbsoluteTolerance float64
	RelativeTolerance float64

	MaxStepCount        uint
	MaxOrder            int
	MaxNewtonIterations int
	NewtonTol           float64
}

func (c *Config) setDefaults(tEnd, t float64) {
	if c.MaxStepSize <= 0 {
		c.MaxStepSize = tEnd - t
	}
	if c.MinStepSize <= 0 {
		c.MinStepSize = 1e-12
	}
	if c.MaxStepCount == 0 {
		c.MaxStepCount = 100000
	}
	if c.MaxOrder <= 0 || c.MaxOrder > 5 {
		c.MaxOrder = 5
	}
	if c.MaxNewtonIterations <= 0 {
		c.MaxNewtonIterations = 8
	}
	if c.NewtonTol <= 0 {
		c.NewtonTol = 1e-2
	}
	if c.AbsoluteTolerance <= 0 {
		c.AbsoluteTolerance = 1e-6
	}
	if c.RelativeTolerance <= 0 {
		c.RelativeTolerance = c.AbsoluteTolerance
	}
}

// Statistics mirrors ode.Statistics with the extra LinearSolveCount and
// Order fields a Newton-corrector BDF stepper needs to report.
type Statistics struct {
	StepCount, RejectedCount, EvaluationCount, LinearSolveCount uint
	LastStepSize, NextStepSize, CurrentTime                     float64
	Order                                                       int
}

// classical uniform-step tables for BDF(k), k=1..5: ẏ_{n+1} = (Σ_i coeffs[i]·y_{n+1-i}) / (denom·h);
// the variable-step weights Integrate computes reduce to these when the recent steps are equal
var bdfCoeffs = [][]float64{
	{1, -1},
	{3, -4, 1},
	{11, -18, 9, -2},
	{25, -48, 36, -16, 3},
	{137, -300, 300, -200, 75, -12},
}

var bdfDenom = []float64{1, 2, 6, 12, 60}

// Stepper carries the callback pair and dof count across a sequence of
// Integrate calls; it holds no integration state. Each Integrate call
// starts again at order 1 from the (y, ẏ) it is given, so no BDF history
// is carried from one call to the next, and package sim constructs a
// fresh Stepper for every section, continuous boundaries included.
type Stepper struct {
	residual    ResidualFunc
	linearSolve LinearSolveFunc
	n           int
}

func New(n int, residual ResidualFunc, linearSolve LinearSolveFunc) *Stepper {
	return &Stepper{n: n, residual: residual, linearSolve: linearSolve}
}

func weightedNorm(v, w []float64) float64 {
	sum := 0.0
	for i := range v {
		wv := w[i] * v[i]
		sum += wv * wv
	}
	return math.Sqrt(sum / float64(len(v)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// neville extrapolates the history points (times[i], values[i]),
// ordered newest-first, to target via Neville's algorithm, written into
// out. Exact for polynomials up to degree len(times)-1 regardless of
// spacing, so the predictor stays correct across step-size changes.
func neville(times []float64, values [][]float64, target float64, out []float64) {
	k := len(times)
	n := len(out)
	tbl := make([][]float64, k)
	for i := range tbl {
		tbl[i] = append([]float64(nil), values[i]...)
	}
	for m := 1; m < k; m++ {
		for i := 0; i < k-m; i++ {
			for d := 0; d < n; d++ {
				tbl[i][d] = ((target-times[i+m])*tbl[i][d] - (target-times[i])*tbl[i+1][d]) / (times[i] - times[i+m])
			}
		}
	}
	copy(out, tbl[0])
}

// Integrate marches y (a consistent state, paired with ẏ already
// satisfying the residual at t) from t to tEnd, returning once tEnd is
// reached or an unrecoverable failure occurs. secIdx/timeFactor are
// passed through to every residual/linear-solve callback unchanged
// within one section; ẏ is left holding the derivative consistent with
// the final accepted step.
func (s *Stepper) Integrate(secIdx int, t, tEnd, timeFactor float64, y, ydot []float64, cfg Config) (Statistics, error) {
	cfg.setDefaults(tEnd, t)
	n := s.n

	h := cfg.InitialStepSize
	if h <= 0 {
		h = math.Min(1e-6, cfg.MaxStepSize)
	}
	order := 1

	historyT := []float64{t}
	historyY := [][]float64{append([]float64(nil), y...)}

	weights := make([]float64, n)
	updateWeights := func(ref []float64) {
		for i := range weights {
			weights[i] = 1.0 / (cfg.AbsoluteTolerance + cfg.RelativeTolerance*math.Abs(ref[i]))
		}
	}

	stat := Statistics{CurrentTime: t, Order: order}
	tc := t
	res := make([]float64, n)
	yTrial := make([]float64, n)
	predicted := make([]float64, n)
	diff := make([]float64, n)

	for tc < tEnd {
		if stat.StepCount >= uint(cfg.MaxStepCount) {
			return stat, &grmerr.IntegrationFailure{LastTime: tc, Err: fmt.Errorf("bdf: exceeded max step count %d", cfg.MaxStepCount)}
		}
		if h < cfg.MinStepSize {
			return stat, &grmerr.IntegrationFailure{LastTime: tc, Err: fmt.Errorf("bdf: step size %g below minimum %g", h, cfg.MinStepSize)}
		}
		if tc+h > tEnd {
			h = tEnd - tc
		}

		k := order
		if k > len(historyY) {
			k = len(historyY)
		}
		coeffs := make([]float64, k+1)
		for j := 1; j <= k; j++ {
			coeffs[0] += 1 / (tc + h - historyT[j-1])
			coeffs[j] = 1 / (historyT[j-1] - tc - h)
			for m := 1; m <= k; m++ {
				if m != j {
					coeffs[j] *= (tc + h - historyT[m-1]) / (historyT[j-1] - historyT[m-1])
				}
			}
		}

		np := min(k+1, len(historyY))
		neville(historyT[:np], historyY[:np], tc+h, predicted)
		copy(yTrial, predicted)
		updateWeights(historyY[0])

		alpha := coeffs[0]

		converged := false
		fatal := false
		for newton := 0; newton < cfg.MaxNewtonIterations; newton++ {
			for i := 0; i < n; i++ {
				ydot[i] = coeffs[0] * yTrial[i]
				for j := 1; j < k+1 && j <= len(coeffs)-1; j++ {
					ydot[i] += coeffs[j] * historyY[j-1][i]
				}
			}

			s.residual(secIdx, tc+h, timeFactor, yTrial, ydot, res, true)
			stat.EvaluationCount++

			code := s.linearSolve(alpha, timeFactor, res, weights)
			stat.LinearSolveCount++
			if code < 0 {
				fatal = true
				break
			}
			if code > 0 {
				break
			}

			stepNorm := weightedNorm(res, weights)
			for i := 0; i < n; i++ {
				yTrial[i] -= res[i]
			}
			if stepNorm <= cfg.NewtonTol {
				converged = true
				break
			}
		}

		if fatal {
			return stat, &grmerr.LinearSolveFatal{Reason: fmt.Sprintf("bdf: fatal linear solve failure at t=%g", tc)}
		}
		if !converged {
			stat.RejectedCount++
			h *= 0.5
			continue
		}

		for i := 0; i < n; i++ {
			diff[i] = yTrial[i] - predicted[i]
		}
		errEst := weightedNorm(diff, weights)
		if errEst > 1.0 {
			stat.RejectedCount++
			h *= clamp(0.9*math.Pow(1/errEst, 1.0/float64(k+1)), 0.2, 0.9)
			continue
		}

		tc += h
		stat.StepCount++

		historyT = append([]float64{tc}, historyT...)
		historyY = append([][]float64{append([]float64(nil), yTrial...)}, historyY...)
		if len(historyY) > cfg.MaxOrder+1 {
			historyT = historyT[:cfg.MaxOrder+1]
			historyY = historyY[:cfg.MaxOrder+1]
		}

		switch {
		case order < cfg.MaxOrder && len(historyY) > order+1 && errEst < 0.1:
			order++
		case errEst > 0.5 && order > 1:
			order--
		}
		stat.Order = order

		copy(y, yTrial)

		hNew := h * clamp(0.9*math.Pow(1/math.Max(errEst, 1e-12), 1.0/float64(k+1)), 0.5, 2.0)
		h = math.Min(hNew, cfg.MaxStepSize)
	}

	stat.CurrentTime = tc
	stat.LastStepSize = h
	stat.NextStepSize = h
	return stat, nil
}
