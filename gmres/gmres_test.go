package gmres

import "testing"

func TestSolveDiagonalSystem(t *testing.T) {
	n := 5
	diag := []float64{2, 3, 4, 5, 6}
	matVec := func(dst, src []float64) {
		for i := range dst {
			dst[i] = diag[i] * src[i]
		}
	}
	b := []float64{2, 6, 12, 20, 30}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	x := make([]float64, n)
	stats := Solve(matVec, b, w, x, Params{Restart: 5, MaxIter: 50, OuterTol: 1e-10, SchurSafety: 1})
	if !stats.Converged {
		t.Fatalf("GMRES did not converge: %+v", stats)
	}
	want := []float64{1, 2, 3, 4, 5}
	for i := range want {
		if diff := x[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("x[%d]=%v want %v", i, x[i], want[i])
		}
	}
}

func TestSolveNonConvergesWithTinyIterBudget(t *testing.T) {
	n := 20
	matVec := func(dst, src []float64) {
		for i := range dst {
			dst[i] = src[i]
			if i > 0 {
				dst[i] += 0.9 * src[i-1]
			}
			if i < n-1 {
				dst[i] += 0.9 * src[i+1]
			}
		}
	}
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	x := make([]float64, n)
	stats := Solve(matVec, b, w, x, Params{Restart: 1, MaxIter: 1, OuterTol: 1e-12, SchurSafety: 1})
	if stats.Converged {
		t.Fatalf("expected non-convergence with a 1-iteration budget")
	}
}
