// Package ad implements a minimal forward-mode automatic-differentiation
// scalar: a value paired with a fixed number of directional derivatives.
//
// The engine is treated as an external interface by the specification
// (the AD engine itself is out of scope); this is the concrete stand-in
// needed so the binding models and the consistent-sensitivity solve in
// package model can seed and read directional derivatives.
package ad

import "math"

// Value holds a scalar and its gradient along a fixed set of AD
// directions. The number of directions is set once per Value via New and
// must match across operands of any binary operation.
type Value struct {
	V float64
	D []float64
}

// New returns a Value with no active directions (a constant).
func New(v float64, nDirs int) Value {
	return Value{V: v, D: make([]float64, nDirs)}
}

// Seed returns a Value equal to v with derivative 1 along direction dir.
func Seed(v float64, nDirs, dir int) Value {
	val := New(v, nDirs)
	val.D[dir] = 1
	return val
}

// NDirs reports the number of AD directions carried by a.
func (a Value) NDirs() int { return len(a.D) }

// GetADValue returns the directional derivative along dir.
func (a Value) GetADValue(dir int) float64 { return a.D[dir] }

// SetADValue sets the directional derivative along dir.
func (a *Value) SetADValue(dir int, v float64) { a.D[dir] = v }

func (a Value) clone() Value {
	d := make([]float64, len(a.D))
	copy(d, a.D)
	return Value{V: a.V, D: d}
}

func (a Value) Add(b Value) Value {
	r := a.clone()
	r.V += b.V
	for i := range r.D {
		r.D[i] += b.D[i]
	}
	return r
}

func (a Value) Sub(b Value) Value {
	r := a.clone()
	r.V -= b.V
	for i := range r.D {
		r.D[i] -= b.D[i]
	}
	return r
}

func (a Value) Neg() Value {
	r := a.clone()
	r.V = -r.V
	for i := range r.D {
		r.D[i] = -r.D[i]
	}
	return r
}

func (a Value) Mul(b Value) Value {
	r := a.clone()
	r.V = a.V * b.V
	for i := range r.D {
		r.D[i] = a.D[i]*b.V + a.V*b.D[i]
	}
	return r
}

func (a Value) Div(b Value) Value {
	r := a.clone()
	r.V = a.V / b.V
	inv := 1.0 / (b.V * b.V)
	for i := range r.D {
		r.D[i] = (a.D[i]*b.V - a.V*b.D[i]) * inv
	}
	return r
}

// AddC, MulC etc. combine a Value with a plain float64 constant.
func (a Value) AddC(c float64) Value {
	r := a.clone()
	r.V += c
	return r
}

func (a Value) MulC(c float64) Value {
	r := a.clone()
	r.V *= c
	for i := range r.D {
		r.D[i] *= c
	}
	return r
}

func Exp(a Value) Value {
	r := a.clone()
	e := math.Exp(a.V)
	r.V = e
	for i := range r.D {
		r.D[i] = a.D[i] * e
	}
	return r
}

func Pow(a Value, p float64) Value {
	r := a.clone()
	r.V = math.Pow(a.V, p)
	dv := p * math.Pow(a.V, p-1)
	for i := range r.D {
		r.D[i] = a.D[i] * dv
	}
	return r
}
