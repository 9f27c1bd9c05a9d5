package game

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/particles"
	"github.com/pthm-cable/swarm/sim"
	"github.com/pthm-cable/swarm/telemetry"
)

// Options holds configuration for game initialization.
type Options struct {
	// Config is the loaded configuration (nil = config.Cfg()).
	Config *config.Config

	Headless bool
	// Backend overrides pipeline.backend when set.
	Backend   string
	OutputDir string
	LogStats  bool

	// StatsCallback is called with every flushed motion window.
	StatsCallback func(telemetry.MotionStats)

	// Registry receives pipeline metrics (nil disables them).
	Registry prometheus.Registerer
	Logger   *slog.Logger
}

// ParamsFromConfig converts the simulation section to force parameters.
func ParamsFromConfig(cfg *config.Config) sim.Params {
	s := cfg.Simulation
	return sim.Params{
		ForceScale:         float32(s.ForceScale),
		MinDistance:        float32(s.MinDistance),
		MaxForce:           float32(s.MaxForce),
		Damping:            float32(s.Damping),
		TerminalVelocity:   float32(s.TerminalVelocity),
		MouseForceRadius:   float32(s.MouseForceRadius),
		MouseForceStrength: float32(s.MouseForceStrength),
		TimeScale:          float32(s.TimeScale),
		AttractionStrength: float32(s.AttractionStrength),
		Theta:              float32(s.Theta),
		FarField:           s.FarField,
	}
}

// SimConfig builds the simulation description from cfg. Backend, phases
// and observer are wired by the caller.
func SimConfig(cfg *config.Config) sim.Config {
	return sim.Config{
		Count:         cfg.World.Particles,
		Bounds:        particles.Bounds{Width: cfg.Derived.WorldW32, Height: cfg.Derived.WorldH32},
		Seed:          cfg.World.Seed,
		Sets:          cfg.Pipeline.BufferSets,
		MaxParticles:  cfg.World.MaxParticles,
		BulkSeed:      cfg.World.BulkSeed,
		Params:        ParamsFromConfig(cfg),
		FenceTimeout:  cfg.Derived.FenceTimeout,
		IndexTimeout:  cfg.Derived.IndexTimeout,
		RenderTimeout: cfg.Derived.RenderTimeout,
		LocalSize:     cfg.Pipeline.WorkgroupSize,
	}
}
