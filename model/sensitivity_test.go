package model

import (
	"math"
	"testing"
)

// TestConsistentSensitivitiesMatchesFiniteDifference checks property 5
// (the AD-directional sensitivity agrees with an independent finite
// difference, to O(h^2)) and scenario E4 (a full forward-sensitivity
// solve against a Velocity direction). The finite difference recomputes
// ẏ at Velocity±h through consistentTimeDerivatives directly — a
// separate code path from ConsistentSensitivities' AD-seeded residual —
// so the two are independent checks on the same quantity, ∂ẏ/∂Velocity
// at a fixed consistent y.
func TestConsistentSensitivitiesMatchesFiniteDifference(t *testing.T) {
	m, cfg := newTestModel(t)
	n := m.NumDofs()
	idx := m.Layout()

	y := make([]float64, n)
	for c := 0; c < cfg.NComp; c++ {
		for k := 0; k < cfg.NCol; k++ {
			y[idx.OffsetBulkComp(c)+k] = 1.0
		}
	}
	for k := 0; k < cfg.NCol; k++ {
		for j := 0; j < cfg.NPar; j++ {
			base := idx.OffsetParShell(k, j)
			y[base] = 1.0
		}
	}
	ydot := make([]float64, n)
	if err := m.ConsistentInitialConditions(0, 1.0, 0, y, ydot, 1e-10); err != nil {
		t.Fatalf("ConsistentInitialConditions: %v", err)
	}

	velocityDirection := func(c *ADConfig) { c.Velocity.SetADValue(0, 1) }
	s := make([]float64, n)
	sdot := make([]float64, n)
	if err := m.ConsistentSensitivities(0, 1.0, 0, y, velocityDirection, s, sdot, true); err != nil {
		t.Fatalf("ConsistentSensitivities: %v", err)
	}

	// The film-flux algebraic constraint's coefficients never involve
	// Velocity, so this direction's flux sensitivity should vanish.
	foff := idx.OffsetJf()
	nFlux := cfg.NComp * cfg.NCol
	for i := 0; i < nFlux; i++ {
		if v := math.Abs(s[foff+i]); v > 1e-9 {
			t.Errorf("s[flux %d] = %v, want ~0 for a Velocity direction", i, v)
		}
	}

	const h = 1e-6
	orig := cfg.Velocity

	cfg.Velocity = orig + h
	ydotPlus := make([]float64, n)
	if err := m.consistentTimeDerivatives(0, 1.0, 0, y, ydotPlus, true); err != nil {
		t.Fatalf("consistentTimeDerivatives(+h): %v", err)
	}

	cfg.Velocity = orig - h
	ydotMinus := make([]float64, n)
	if err := m.consistentTimeDerivatives(0, 1.0, 0, y, ydotMinus, true); err != nil {
		t.Fatalf("consistentTimeDerivatives(-h): %v", err)
	}

	cfg.Velocity = orig

	for i := range sdot {
		fd := (ydotPlus[i] - ydotMinus[i]) / (2 * h)
		tol := 1e-3 * math.Max(1, math.Abs(fd))
		if diff := math.Abs(sdot[i] - fd); diff > tol {
			t.Errorf("sdot[%d] = %v, finite-difference ~%v (diff %v > tol %v)", i, sdot[i], fd, diff, tol)
		}
	}
}

// TestSchurComplementMatVecMatchesExplicitBlockProduct is property 3:
// schurComplementMatVec's output must match an explicitly-formed block
// product I - J_fi*J_ii^-1*J_if built independently, by probing each
// coupling matrix and each diagonal block's factored solve with unit
// basis vectors rather than calling schurComplementMatVec itself.
func TestSchurComplementMatVecMatchesExplicitBlockProduct(t *testing.T) {
	m, cfg := newTestModel(t)
	idx := m.Layout()
	n := m.NumDofs()

	y := make([]float64, n)
	for i := range y {
		y[i] = 0.2 + 0.01*float64(i)
	}
	res := make([]float64, n)
	m.Residual(0, 0, 1.0, y, nil, res, true)
	if err := m.assembleDiscretized(1.0, 1.0); err != nil {
		t.Fatalf("assembleDiscretized: %v", err)
	}

	nBulk := cfg.NComp * cfg.NCol
	nFlux := nBulk

	denseFromMatVec := func(mv func(x, y []float64), rows, cols int) [][]float64 {
		out := make([][]float64, rows)
		for i := range out {
			out[i] = make([]float64, cols)
		}
		for j := 0; j < cols; j++ {
			x := make([]float64, cols)
			x[j] = 1
			yy := make([]float64, rows)
			mv(x, yy)
			for i := 0; i < rows; i++ {
				out[i][j] = yy[i]
			}
		}
		return out
	}
	inverse := func(solve func([]float64) error, sz int) [][]float64 {
		inv := make([][]float64, sz)
		for i := range inv {
			inv[i] = make([]float64, sz)
		}
		for j := 0; j < sz; j++ {
			b := make([]float64, sz)
			b[j] = 1
			if err := solve(b); err != nil {
				t.Fatalf("inverse solve col %d: %v", j, err)
			}
			for i := 0; i < sz; i++ {
				inv[i][j] = b[i]
			}
		}
		return inv
	}
	matVec := func(a [][]float64, x []float64) []float64 {
		out := make([]float64, len(a))
		for i := range a {
			sum := 0.0
			for j, v := range a[i] {
				sum += v * x[j]
			}
			out[i] = sum
		}
		return out
	}

	jacCF := denseFromMatVec(m.jacCF.MultiplyAdd, nBulk, nFlux)
	jacFC := denseFromMatVec(m.jacFC.MultiplyAdd, nFlux, nBulk)

	invBulk := make([][][]float64, cfg.NComp)
	for c := 0; c < cfg.NComp; c++ {
		invBulk[c] = inverse(m.jacCdisc[c].Solve, cfg.NCol)
	}

	parN := idx.StrideParBlock()
	jacFPs := make([][][]float64, cfg.NCol)
	jacPFs := make([][][]float64, cfg.NCol)
	invPar := make([][][]float64, cfg.NCol)
	for k := 0; k < cfg.NCol; k++ {
		jacFPs[k] = denseFromMatVec(m.jacFP[k].MultiplyAdd, nFlux, parN)
		jacPFs[k] = denseFromMatVec(m.jacPF[k].MultiplyAdd, parN, nFlux)
		invPar[k] = inverse(m.jacPdisc[k].Solve, parN)
	}

	x := make([]float64, nFlux)
	for i := range x {
		x[i] = 0.3 + 0.1*float64(i)
	}

	want := append([]float64(nil), x...)

	bulkFromFlux := matVec(jacCF, x)
	for c := 0; c < cfg.NComp; c++ {
		off := idx.OffsetBulkComp(c)
		sub := bulkFromFlux[off : off+cfg.NCol]
		afterInv := matVec(invBulk[c], sub)
		afterInvFull := make([]float64, nBulk)
		copy(afterInvFull[off:off+cfg.NCol], afterInv)
		contrib := matVec(jacFC, afterInvFull)
		for i := range want {
			want[i] -= contrib[i]
		}
	}

	for k := 0; k < cfg.NCol; k++ {
		parFromFlux := matVec(jacPFs[k], x)
		afterInv := matVec(invPar[k], parFromFlux)
		contrib := matVec(jacFPs[k], afterInv)
		for i := range want {
			want[i] -= contrib[i]
		}
	}

	got := make([]float64, nFlux)
	m.schurComplementMatVec(got, x)

	for i := range want {
		if diff := math.Abs(got[i] - want[i]); diff > 1e-8 {
			t.Errorf("schurComplementMatVec[%d] = %v, explicit block product = %v (diff %v)", i, got[i], want[i], diff)
		}
	}
}
