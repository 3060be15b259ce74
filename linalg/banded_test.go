package linalg

import "testing"

func TestSolveDenseMatchesClosedForm(t *testing.T) {
	// Ax = b, A = [[2,3,1],[1,2,3],[3,1,2]], b = [9,6,8]
	a := NewDense(3, 3)
	rows := [][]float64{{2, 3, 1}, {1, 2, 3}, {3, 1, 2}}
	for i, row := range rows {
		for j, v := range row {
			a.Set(i, j, v)
		}
	}
	x, err := SolveDense(a, []float64{9, 6, 8})
	if err != nil {
		t.Fatalf("SolveDense: %v", err)
	}
	want := []float64{35.0 / 18, 29.0 / 18, 5.0 / 18}
	for i := range want {
		if diff := x[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("x[%d] = %v, want %v", i, x[i], want[i])
		}
	}
}

func TestFactorizableBandedSolveTridiagonal(t *testing.T) {
	n := 6
	a := NewFactorizableBanded(n, 1, 1)
	for i := 0; i < n; i++ {
		a.Set(i, i, 4)
		if i > 0 {
			a.Set(i, i-1, -1)
		}
		if i < n-1 {
			a.Set(i, i+1, -1)
		}
	}
	if ok := a.Factorize(); !ok {
		t.Fatalf("Factorize failed")
	}
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}
	bCopy := append([]float64(nil), b...)
	if err := a.Solve(b); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	// residual check: A*x - b ~ 0
	res := make([]float64, n)
	a.SubmatrixMultiplyVector(b, 0, 0, n, n, 1, 0, res)
	for i := range res {
		if diff := res[i] - bCopy[i]; diff > 1e-8 || diff < -1e-8 {
			t.Errorf("residual[%d] = %v", i, diff)
		}
	}
}

func TestSparseMultiplyAddSubtract(t *testing.T) {
	s := NewSparse(2, 2)
	s.Set(0, 0, 2)
	s.Set(1, 1, 3)
	x := []float64{1, 2}
	y := []float64{10, 10}
	s.MultiplyAdd(x, y)
	if y[0] != 12 || y[1] != 16 {
		t.Fatalf("MultiplyAdd got %v", y)
	}
	s.MultiplySubtract(x, y)
	if y[0] != 10 || y[1] != 10 {
		t.Fatalf("MultiplySubtract got %v", y)
	}
}
