// Package model implements the GeneralRateModel engine of spec §4.D:
// residual evaluation, analytic Jacobian assembly, the Schur-complement
// block linear solve, and both the full and lean consistent-
// initialization procedures.
//
// The per-component/per-particle-block dispatch-and-accumulate loop
// shape is grounded on mna/solve.go's MnaStamp/MnaDoStep pattern
// (iterate an ID range, dispatch to a capability interface, accumulate
// into shared storage); the Schur-complement block solve is grounded on
// maths/lu_block.go's recursive block-LU-via-Schur-complement structure,
// generalized from a literal 2x2 split to a "many diagonal blocks + one
// coupling block" split and from direct recursive factorization to the
// spec's mixed direct/GMRES scheme.
package model

import (
	"fmt"

	"grmcore/binding"
	"grmcore/indexer"
	"grmcore/param"
)

// Config carries the discretization parameters of spec §3, populated
// once from a param.Provider (the only place the core reads external
// configuration, per §6).
type Config struct {
	NComp int
	NCol  int
	NPar  int

	ColLength float64
	Velocity  float64
	ColDispersion []float64 // per component, axial

	ParRadius float64
	BetaP     float64 // particle porosity
	ParDiffusion []float64 // per component, pore diffusion
	FilmDiffusion []float64 // per component, film mass-transfer coefficient k_f

	BulkPorosity float64

	InletConcentration func(t float64, comp int) float64
}

// Configure reads a Config from a param.Provider, the core's only
// interaction with the external, consumed-only configuration source
// (spec §6).
func Configure(p param.Provider) (*Config, error) {
	getInt := func(name string) (int, error) { return p.GetInt(name) }
	getDouble := func(name string) (float64, error) { return p.GetDouble(name) }
	getArr := func(name string) ([]float64, error) { return p.GetDoubleArray(name) }

	nComp, err := getInt("NCOMP")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	nCol, err := getInt("NCOL")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	nPar, err := getInt("NPAR")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	colLength, err := getDouble("COL_LENGTH")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	velocity, err := getDouble("VELOCITY")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	dispersion, err := getArr("COL_DISPERSION")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	parRadius, err := getDouble("PAR_RADIUS")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	betaP, err := getDouble("PAR_POROSITY")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	parDiff, err := getArr("PAR_DIFFUSION")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	filmDiff, err := getArr("FILM_DIFFUSION")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}
	bulkPorosity, err := getDouble("COL_POROSITY")
	if err != nil {
		return nil, fmt.Errorf("model: configure: %w", err)
	}

	return &Config{
		NComp: nComp, NCol: nCol, NPar: nPar,
		ColLength: colLength, Velocity: velocity, ColDispersion: dispersion,
		ParRadius: parRadius, BetaP: betaP, ParDiffusion: parDiff, FilmDiffusion: filmDiff,
		BulkPorosity: bulkPorosity,
	}, nil
}

// Layout builds the indexer.Layout for this configuration, given the
// binding model's per-component bound-state counts.
func (c *Config) Layout(bnd binding.Model) indexer.Layout {
	return indexer.Layout{NComp: c.NComp, NCol: c.NCol, NPar: c.NPar, NBound: bnd.NBound()}
}

// cellSpacing is the bulk finite-volume cell width.
func (c *Config) cellSpacing() float64 { return c.ColLength / float64(c.NCol) }

// shellSpacing is the particle radial shell width.
func (c *Config) shellSpacing() float64 { return c.ParRadius / float64(c.NPar) }

// surfaceFactor is the geometric factor converting a film flux into a
// volumetric source term at the particle's outer shell, and filmFactor
// the analogous factor for the bulk-phase sink term.
func (c *Config) surfaceFactor() float64 { return 3.0 / (c.ParRadius * c.BetaP) }
func (c *Config) filmFactor(comp int) float64 {
	return 3.0 * (1 - c.BulkPorosity) / (c.BulkPorosity * c.ParRadius)
}
