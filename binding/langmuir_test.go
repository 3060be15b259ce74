package binding

import (
	"math"
	"testing"

	"grmcore/linalg"
)

func TestLangmuirConsistentInitialStateSatisfiesEquilibrium(t *testing.T) {
	lm := &Langmuir{Ka: []float64{2, 1}, Kd: []float64{1, 1}, Qmax: []float64{10, 10}, Algebraic: true}
	cp := []float64{0.5, 0.3}
	q := []float64{0, 0}
	ws := make([]float64, 2)
	dj := linalg.NewDense(2, 2)
	if err := lm.ConsistentInitialState(0, 0, 0, 0, cp, q, 1e-10, ws, dj); err != nil {
		t.Fatalf("ConsistentInitialState: %v", err)
	}
	res := make([]float64, 2)
	jacQ := linalg.NewDense(2, 2)
	jacCp := linalg.NewDense(2, 2)
	lm.Residual(0, 0, 0, 0, cp, q, res, false, jacQ, jacCp)
	for i, r := range res {
		if math.Abs(r) > 1e-8 {
			t.Errorf("residual[%d] = %v, want ~0", i, r)
		}
	}
}

func TestLangmuirConsistentInitialStateIdempotentAtEquilibrium(t *testing.T) {
	lm := &Langmuir{Ka: []float64{3}, Kd: []float64{1}, Qmax: []float64{5}, Algebraic: true}
	cp := []float64{1.0}
	q := []float64{0}
	ws := make([]float64, 1)
	dj := linalg.NewDense(1, 1)
	if err := lm.ConsistentInitialState(0, 0, 0, 0, cp, q, 1e-12, ws, dj); err != nil {
		t.Fatalf("ConsistentInitialState: %v", err)
	}
	q1 := append([]float64(nil), q...)
	if err := lm.ConsistentInitialState(0, 0, 0, 0, cp, q, 1e-12, ws, dj); err != nil {
		t.Fatalf("second ConsistentInitialState: %v", err)
	}
	if math.Abs(q1[0]-q[0]) > 1e-9 {
		t.Fatalf("re-solving at equilibrium moved q: %v -> %v", q1[0], q[0])
	}
}

func TestLinearJacobianAddDiscretized(t *testing.T) {
	l := &Linear{Ka: []float64{1, 2}, Kd: []float64{0.5, 0.5}}
	jacQ := linalg.NewDense(2, 2)
	l.JacobianAddDiscretized(3.0, jacQ)
	if jacQ.Get(0, 0) != 3 || jacQ.Get(1, 1) != 3 {
		t.Fatalf("expected diagonal 3, got %v %v", jacQ.Get(0, 0), jacQ.Get(1, 1))
	}
}
