// Package gmres implements restarted GMRES for the flux Schur complement
// (spec §4.B), with a weighted 2-norm residual driven by the integrator's
// error-weight vector.
//
// Grounded on the gonum-style iterative-solver shape surveyed from
// other_examples/vladimir-ch-iterative__iterative.go (a MatVec callback,
// a Settings struct, a convergence-driven outer loop), generalized from a
// plain 2-norm to the spec's weighted norm and restart-length contract.
// Vector reductions use gonum.org/v1/gonum/floats, the same library
// family the grounding file imports (modernized import path).
package gmres

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MatVec is the caller-supplied matrix-vector product callback for the
// (implicit) Schur-complement operator S: dst = S(src).
type MatVec func(dst, src []float64)

// Params configures one restarted GMRES solve.
type Params struct {
	Restart     int // restart length (number of Krylov vectors per cycle)
	MaxIter     int // maximum total Arnoldi iterations across restarts (residual evaluations add further matrix-vector products)
	OuterTol    float64
	SchurSafety float64
}

// Stats reports how a Solve call went, for logging and for the §8 E5
// recoverable-retry scenario.
type Stats struct {
	Iterations   int
	ResidualNorm float64
	Converged    bool
}

func weightedNorm(v, w []float64) float64 {
	sum := 0.0
	for i := range v {
		wv := w[i] * v[i]
		sum += wv * wv
	}
	return math.Sqrt(sum)
}

func residual(matVec MatVec, b, x, scratch []float64) []float64 {
	matVec(scratch, x)
	for i := range scratch {
		scratch[i] = b[i] - scratch[i]
	}
	return scratch
}

// Solve solves S x = b via restarted GMRES with weights w (the
// integrator's error-weight vector) and initial guess x, overwritten in
// place with the result.
func Solve(matVec MatVec, b []float64, w []float64, x []float64, p Params) Stats {
	n := len(b)
	tol := math.Sqrt(float64(n)) * p.OuterTol * p.SchurSafety
	restart := p.Restart
	if restart <= 0 || restart > n {
		restart = n
	}

	sx := make([]float64, n)
	r := residual(matVec, b, x, sx)
	resNorm := weightedNorm(r, w)
	stats := Stats{ResidualNorm: resNorm}
	if resNorm <= tol {
		stats.Converged = true
		return stats
	}

	totalIters := 0
	for totalIters < p.MaxIter {
		v := make([][]float64, restart+1)
		h := make([][]float64, restart+1)
		for i := range h {
			h[i] = make([]float64, restart)
		}
		g := make([]float64, restart+1)
		cs := make([]float64, restart)
		sn := make([]float64, restart)

		beta := floats.Norm(r, 2)
		if beta == 0 {
			stats.Converged = true
			stats.ResidualNorm = 0
			stats.Iterations = totalIters
			return stats
		}
		v[0] = make([]float64, n)
		for i := range r {
			v[0][i] = r[i] / beta
		}
		g[0] = beta

		m := 0
		for ; m < restart && totalIters < p.MaxIter; m++ {
			totalIters++
			wk := make([]float64, n)
			matVec(wk, v[m])
			for i := 0; i <= m; i++ {
				h[i][m] = floats.Dot(wk, v[i])
				floats.AddScaled(wk, -h[i][m], v[i])
			}
			hNorm := floats.Norm(wk, 2)
			h[m+1][m] = hNorm

			for i := 0; i < m; i++ {
				temp := cs[i]*h[i][m] + sn[i]*h[i+1][m]
				h[i+1][m] = -sn[i]*h[i][m] + cs[i]*h[i+1][m]
				h[i][m] = temp
			}
			denom := math.Hypot(h[m][m], h[m+1][m])
			if denom == 0 {
				cs[m], sn[m] = 1, 0
			} else {
				cs[m] = h[m][m] / denom
				sn[m] = h[m+1][m] / denom
			}
			h[m][m] = cs[m]*h[m][m] + sn[m]*h[m+1][m]
			h[m+1][m] = 0
			g[m+1] = -sn[m] * g[m]
			g[m] = cs[m] * g[m]

			if hNorm > 1e-300 && m+1 < len(v) {
				v[m+1] = make([]float64, n)
				for i := range wk {
					v[m+1][i] = wk[i] / hNorm
				}
			} else {
				m++
				break
			}
		}

		// solve the m x m upper-triangular system H y = g (back substitution)
		y := make([]float64, m)
		for i := m - 1; i >= 0; i-- {
			sum := g[i]
			for j := i + 1; j < m; j++ {
				sum -= h[i][j] * y[j]
			}
			if h[i][i] == 0 {
				y[i] = 0
				continue
			}
			y[i] = sum / h[i][i]
		}
		for i := 0; i < m; i++ {
			floats.AddScaled(x, y[i], v[i])
		}

		r = residual(matVec, b, x, sx)
		resNorm = weightedNorm(r, w)
		stats.ResidualNorm = resNorm
		stats.Iterations = totalIters
		if resNorm <= tol {
			stats.Converged = true
			return stats
		}
	}
	stats.Converged = false
	return stats
}
