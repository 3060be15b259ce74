// Package linalg implements the banded/dense matrix kernels and sparse
// coupling matrices that back the GeneralRateModel Jacobian (spec §4.A).
//
// Storage and the Get/Set/Copy/Zero accessor shape follow the teacher's
// MatrixDataManager in maths/matrix.go; the banded LU with partial
// pivoting is new (the teacher only carries dense/sparse LU).
package linalg

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense is a row-major dense matrix used for small per-shell systems and
// as a scratch view over banded storage (copySubmatrixFromBanded).
type Dense struct {
	rows, cols int
	data       []float64
}

func NewDense(rows, cols int) *Dense {
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (m *Dense) Rows() int { return m.rows }
func (m *Dense) Cols() int { return m.cols }

func (m *Dense) idx(i, j int) int {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("linalg: index (%d,%d) out of bounds for %dx%d matrix", i, j, m.rows, m.cols))
	}
	return i*m.cols + j
}

func (m *Dense) Get(i, j int) float64        { return m.data[m.idx(i, j)] }
func (m *Dense) Set(i, j int, v float64)     { m.data[m.idx(i, j)] = v }
func (m *Dense) Increment(i, j int, v float64) { m.data[m.idx(i, j)] += v }

func (m *Dense) SetAll(v float64) {
	for i := range m.data {
		m.data[i] = v
	}
}

func (m *Dense) CopyOver(dst *Dense) {
	if dst.rows != m.rows || dst.cols != m.cols {
		panic("linalg: dense CopyOver dimension mismatch")
	}
	copy(dst.data, m.data)
}

// MultiplyVector computes y = alpha*M*x + beta*y.
func (m *Dense) MultiplyVector(x []float64, alpha, beta float64, y []float64) {
	if len(x) != m.cols || len(y) != m.rows {
		panic("linalg: dense MultiplyVector dimension mismatch")
	}
	for i := 0; i < m.rows; i++ {
		sum := 0.0
		base := i * m.cols
		for j := 0; j < m.cols; j++ {
			sum += m.data[base+j] * x[j]
		}
		y[i] = alpha*sum + beta*y[i]
	}
}

var ErrSingular = errors.New("linalg: matrix is singular to working precision")

// ToMatDense returns a gonum mat.Dense view backed by a copy of m's data,
// for the small per-shell dense solves (binding consistent init,
// consistentSensitivities' algebraic closure) that hand off to gonum's LU
// rather than a hand-rolled factorization.
func (m *Dense) ToMatDense() *mat.Dense {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return mat.NewDense(m.rows, m.cols, data)
}

// SolveDense solves m x = b for x using gonum's LU factorization,
// returning ErrSingular if m is singular to working precision.
func SolveDense(m *Dense, b []float64) ([]float64, error) {
	a := m.ToMatDense()
	rhs := mat.NewDense(len(b), 1, append([]float64(nil), b...))
	var x mat.Dense
	if err := x.Solve(a, rhs); err != nil {
		return nil, ErrSingular
	}
	out := make([]float64, len(b))
	for i := range out {
		out[i] = x.At(i, 0)
	}
	return out, nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CopySubmatrixFromBanded copies the dense view of a banded block's
// sub-range starting at (rowOff, colOff) into m, used by
// consistentInitialState/consistentSensitivities as scratch per §9.
func (m *Dense) CopySubmatrixFromBanded(b *Banded, rowOff, colOff, nRows, nCols int) {
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			m.Set(i, j, b.Get(rowOff+i, colOff+j))
		}
	}
}
