// Command tune searches force parameters for a target motion profile by
// running the simulation headless on the soft device.
package main

import (
	"github.com/pthm-cable/swarm/config"
)

// Param is one tunable simulation field and its search range.
type Param struct {
	Path     string // config key, for logs and output
	Min, Max float64
	field    func(*config.SimulationConfig) *float64
}

func (p Param) clamp(v float64) float64 { return min(max(v, p.Min), p.Max) }

func (p Param) toUnit(v float64) float64 { return (v - p.Min) / (p.Max - p.Min) }

func (p Param) fromUnit(u float64) float64 { return p.clamp(p.Min + u*(p.Max-p.Min)) }

// Space is the searched parameter set. The optimizer works in the unit
// cube; Space maps between it and config values.
type Space []Param

// DefaultSpace covers the parameters that shape the steady-state speed
// distribution.
func DefaultSpace() Space {
	return Space{
		{Path: "simulation.force_scale", Min: 10, Max: 500,
			field: func(s *config.SimulationConfig) *float64 { return &s.ForceScale }},
		{Path: "simulation.damping", Min: 0.5, Max: 1,
			field: func(s *config.SimulationConfig) *float64 { return &s.Damping }},
		{Path: "simulation.attraction_strength", Min: 0.1, Max: 5,
			field: func(s *config.SimulationConfig) *float64 { return &s.AttractionStrength }},
		{Path: "simulation.time_scale", Min: 0.01, Max: 0.5,
			field: func(s *config.SimulationConfig) *float64 { return &s.TimeScale }},
	}
}

// Read returns the current values of every parameter in cfg.
func (s Space) Read(cfg *config.Config) []float64 {
	v := make([]float64, len(s))
	for i, p := range s {
		v[i] = *p.field(&cfg.Simulation)
	}
	return v
}

// Write stores values into cfg, clamped to each range.
func (s Space) Write(cfg *config.Config, values []float64) {
	for i, p := range s {
		*p.field(&cfg.Simulation) = p.clamp(values[i])
	}
}

// ToUnit maps config values into the unit cube.
func (s Space) ToUnit(values []float64) []float64 {
	u := make([]float64, len(s))
	for i, p := range s {
		u[i] = p.toUnit(p.clamp(values[i]))
	}
	return u
}

// FromUnit maps an optimizer point back to config values. Points outside
// the cube are clamped to the nearest face.
func (s Space) FromUnit(u []float64) []float64 {
	v := make([]float64, len(s))
	for i, p := range s {
		v[i] = p.fromUnit(u[i])
	}
	return v
}
