package linalg

import "fmt"

// Banded stores a square matrix with lower bandwidth kl and upper
// bandwidth ku in row-major compact form: row i holds entries for
// columns [i-kl, i+ku] clipped to [0,n). Row iteration supports in-place
// stencil writes, matching §4.A's "row iteration (in-place stencil
// writes)" requirement.
type Banded struct {
	n, kl, ku int
	// data[i] holds kl+ku+1 entries for row i, column offset j-i+kl.
	data [][]float64
}

func NewBanded(n, kl, ku int) *Banded {
	width := kl + ku + 1
	data := make([][]float64, n)
	for i := range data {
		data[i] = make([]float64, width)
	}
	return &Banded{n: n, kl: kl, ku: ku, data: data}
}

func (b *Banded) N() int                      { return b.n }
func (b *Banded) Bandwidth() (lower, upper int) { return b.kl, b.ku }

func (b *Banded) inBand(i, j int) bool {
	return j >= i-b.kl && j <= i+b.ku && i >= 0 && i < b.n && j >= 0 && j < b.n
}

func (b *Banded) Get(i, j int) float64 {
	if !b.inBand(i, j) {
		if i < 0 || i >= b.n || j < 0 || j >= b.n {
			panic(fmt.Sprintf("linalg: banded index (%d,%d) out of bounds for n=%d", i, j, b.n))
		}
		return 0
	}
	return b.data[i][j-i+b.kl]
}

func (b *Banded) Set(i, j int, v float64) {
	if !b.inBand(i, j) {
		panic(fmt.Sprintf("linalg: banded (%d,%d) outside bandwidth (kl=%d,ku=%d)", i, j, b.kl, b.ku))
	}
	b.data[i][j-i+b.kl] = v
}

func (b *Banded) Increment(i, j int, v float64) {
	b.Set(i, j, b.Get(i, j)+v)
}

// RowRange reports the valid column range [lo, hi) for row i, for
// stencil writers that want to iterate only the in-band columns.
func (b *Banded) RowRange(i int) (lo, hi int) {
	lo = i - b.kl
	if lo < 0 {
		lo = 0
	}
	hi = i + b.ku + 1
	if hi > b.n {
		hi = b.n
	}
	return lo, hi
}

func (b *Banded) SetAll(v float64) {
	for i := range b.data {
		row := b.data[i]
		for j := range row {
			row[j] = v
		}
	}
}

func (b *Banded) CopyOver(dst *Banded) {
	if dst.n != b.n || dst.kl != b.kl || dst.ku != b.ku {
		panic("linalg: banded CopyOver shape mismatch")
	}
	for i := range b.data {
		copy(dst.data[i], b.data[i])
	}
}

func (b *Banded) Clone() *Banded {
	c := NewBanded(b.n, b.kl, b.ku)
	b.CopyOver(c)
	return c
}

// SubmatrixMultiplyVector computes y <- alpha*M_sub*x + beta*y where
// M_sub is the nRows x nCols block of the banded matrix starting at
// (rowOff, colOff).
func (b *Banded) SubmatrixMultiplyVector(x []float64, rowOff, colOff, nRows, nCols int, alpha, beta float64, y []float64) {
	for i := 0; i < nRows; i++ {
		row := rowOff + i
		lo, hi := b.RowRange(row)
		lo -= colOff
		hi -= colOff
		if lo < 0 {
			lo = 0
		}
		if hi > nCols {
			hi = nCols
		}
		sum := 0.0
		for j := lo; j < hi; j++ {
			sum += b.Get(row, colOff+j) * x[j]
		}
		y[i] = alpha*sum + beta*y[i]
	}
}

// FactorizableBanded adds banded LU with partial pivoting and in-place
// solve. Pivoting can grow the effective upper bandwidth by up to kl
// (standard banded-LU fill-in), so factored storage holds ku+kl
// columns on the upper side, kl more than the band itself.
type FactorizableBanded struct {
	n, kl, ku int
	lu        [][]float64 // storage width 3*kl + ku + 1, offset 2*kl
	piv       []int
	factored  bool
	orig      *Banded
}

func NewFactorizableBanded(n, kl, ku int) *FactorizableBanded {
	width := 3*kl + ku + 1
	lu := make([][]float64, n)
	for i := range lu {
		lu[i] = make([]float64, width)
	}
	return &FactorizableBanded{n: n, kl: kl, ku: ku, lu: lu, piv: make([]int, n), orig: NewBanded(n, kl, ku)}
}

func (f *FactorizableBanded) N() int                        { return f.n }
func (f *FactorizableBanded) Bandwidth() (int, int)         { return f.kl, f.ku }
func (f *FactorizableBanded) Get(i, j int) float64          { return f.orig.Get(i, j) }
func (f *FactorizableBanded) Set(i, j int, v float64)       { f.orig.Set(i, j, v); f.factored = false }
func (f *FactorizableBanded) Increment(i, j int, v float64) { f.orig.Increment(i, j, v); f.factored = false }
func (f *FactorizableBanded) SetAll(v float64)              { f.orig.SetAll(v); f.factored = false }
func (f *FactorizableBanded) RowRange(i int) (int, int)     { return f.orig.RowRange(i) }

func (f *FactorizableBanded) CopyOver(dst *FactorizableBanded) {
	f.orig.CopyOver(dst.orig)
}

// CopyFrom replaces the (pre-factorization) contents from another banded
// matrix of identical shape; used to assemble jacCdisc/jacPdisc from
// jacC/jacP plus an alpha*I or algebraic-row overwrite.
func (f *FactorizableBanded) CopyFrom(src *Banded) {
	src.CopyOver(f.orig)
	f.factored = false
}

func (f *FactorizableBanded) SubmatrixMultiplyVector(x []float64, rowOff, colOff, nRows, nCols int, alpha, beta float64, y []float64) {
	f.orig.SubmatrixMultiplyVector(x, rowOff, colOff, nRows, nCols, alpha, beta, y)
}

// Factorize performs banded LU with partial pivoting using the standard
// dense-in-a-band representation (storage widened to 3*kl+ku+1 columns
// to absorb pivot-induced fill-in), eliminating row by row within the
// band.
func (f *FactorizableBanded) Factorize() bool {
	n, kl, ku := f.n, f.kl, f.ku
	// Copy the band into a dense-in-band work buffer widened so that
	// pivot-induced fill-in (up to kl extra super-diagonals) and row
	// swaps never walk off the allocated storage.
	for i := 0; i < n; i++ {
		row := f.lu[i]
		for k := range row {
			row[k] = 0
		}
	}
	for i := 0; i < n; i++ {
		lo, hi := f.orig.RowRange(i)
		for j := lo; j < hi; j++ {
			f.lu[i][j-i+kl+kl] = f.orig.Get(i, j)
		}
	}
	for i := 0; i < n; i++ {
		f.piv[i] = i
	}

	get := func(i, j int) float64 {
		col := j - i + 2*kl
		if col < 0 || col >= len(f.lu[i]) {
			return 0
		}
		return f.lu[i][col]
	}
	set := func(i, j int, v float64) {
		col := j - i + 2*kl
		f.lu[i][col] = v
	}

	maxRow := func(i int) int {
		r := i + kl
		if r >= n {
			r = n - 1
		}
		return r
	}
	maxCol := func(i int) int {
		c := i + ku + kl
		if c >= n {
			c = n - 1
		}
		return c
	}

	for k := 0; k < n; k++ {
		// partial pivot search within the band below the diagonal.
		p, best := k, absf(get(k, k))
		limit := maxRow(k)
		for i := k + 1; i <= limit; i++ {
			if v := absf(get(i, k)); v > best {
				p, best = i, v
			}
		}
		if best < 1e-300 {
			f.factored = false
			return false
		}
		if p != k {
			hi := maxCol(k)
			if maxCol(p) > hi {
				hi = maxCol(p)
			}
			for j := k; j <= hi && j < n; j++ {
				a, b := get(k, j), get(p, j)
				set(k, j, b)
				set(p, j, a)
			}
			f.piv[k], f.piv[p] = f.piv[p], f.piv[k]
		}
		pivot := get(k, k)
		hi := maxCol(k)
		for i := k + 1; i <= limit; i++ {
			factor := get(i, k) / pivot
			set(i, k, factor)
			for j := k + 1; j <= hi && j < n; j++ {
				set(i, j, get(i, j)-factor*get(k, j))
			}
		}
	}
	f.factored = true
	return true
}

func (f *FactorizableBanded) solveGet(i, j int) float64 {
	col := j - i + 2*f.kl
	if col < 0 || col >= len(f.lu[i]) {
		return 0
	}
	return f.lu[i][col]
}

// Solve solves F x = b in place with forward/back substitution over the
// factored band, honoring the pivot permutation recorded by Factorize.
func (f *FactorizableBanded) Solve(b []float64) error {
	if !f.factored {
		return ErrSingular
	}
	n, kl, ku := f.n, f.kl, f.ku
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = b[f.piv[i]]
	}
	for i := 0; i < n; i++ {
		sum := y[i]
		lo := i - (kl + ku)
		if lo < 0 {
			lo = 0
		}
		for j := lo; j < i; j++ {
			sum -= f.solveGet(i, j) * y[j]
		}
		y[i] = sum
	}
	for i := n - 1; i >= 0; i-- {
		sum := y[i]
		hi := i + ku + kl
		if hi >= n {
			hi = n - 1
		}
		for j := i + 1; j <= hi; j++ {
			sum -= f.solveGet(i, j) * y[j]
		}
		y[i] = sum / f.solveGet(i, i)
	}
	copy(b, y)
	return nil
}
