// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	World      WorldConfig      `yaml:"world"`
	Simulation SimulationConfig `yaml:"simulation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Camera     CameraConfig     `yaml:"camera"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	TargetFPS int     `yaml:"target_fps"`
	PointSize float64 `yaml:"point_size"`
	// MaxDrawPoints caps the points the host renderer draws per frame (0 = all).
	MaxDrawPoints int `yaml:"max_draw_points"`
	// ColorMaxSpeed maps to the hottest palette color.
	ColorMaxSpeed float64 `yaml:"color_max_speed"`
}

// WorldConfig holds the seeding rectangle, centered on the origin, and the
// population.
type WorldConfig struct {
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Particles int     `yaml:"particles"`
	// MaxParticles caps particles (0 = no cap beyond the hard limit).
	MaxParticles int    `yaml:"max_particles"`
	Seed         uint32 `yaml:"seed"`
	BulkSeed     bool   `yaml:"bulk_seed"`
}

// SimulationConfig holds the force and integration parameters.
type SimulationConfig struct {
	DT                 float64 `yaml:"dt"`
	ForceScale         float64 `yaml:"force_scale"`
	MinDistance        float64 `yaml:"min_distance"`
	MaxForce           float64 `yaml:"max_force"`
	Damping            float64 `yaml:"damping"`
	TerminalVelocity   float64 `yaml:"terminal_velocity"`
	MouseForceRadius   float64 `yaml:"mouse_force_radius"`
	MouseForceStrength float64 `yaml:"mouse_force_strength"`
	TimeScale          float64 `yaml:"time_scale"`
	AttractionStrength float64 `yaml:"attraction_strength"`
	Theta              float64 `yaml:"theta"`
	FarField           bool    `yaml:"far_field"`
}

// PipelineConfig holds device and buffer ring settings.
type PipelineConfig struct {
	Backend    string `yaml:"backend"` // soft | gl
	BufferSets int    `yaml:"buffer_sets"`
	// FenceTimeoutMS bounds the stepper's compute-target wait,
	// IndexTimeoutMS its far-field wait and RenderTimeoutMS the render wait.
	// Zero polls.
	FenceTimeoutMS  float64 `yaml:"fence_timeout_ms"`
	IndexTimeoutMS  float64 `yaml:"index_timeout_ms"`
	RenderTimeoutMS float64 `yaml:"render_timeout_ms"`
	WorkgroupSize   int     `yaml:"workgroup_size"`
	Workers         int     `yaml:"workers"`         // soft device execution units (0 = GOMAXPROCS)
	MemoryLimitMB   int     `yaml:"memory_limit_mb"` // soft device allocation cap (0 = unlimited)
}

// CameraConfig holds viewport navigation parameters.
type CameraConfig struct {
	Zoom      float64 `yaml:"zoom"` // vertical field of view in degrees
	MinZoom   float64 `yaml:"min_zoom"`
	MaxZoom   float64 `yaml:"max_zoom"`
	ZoomSpeed float64 `yaml:"zoom_speed"`
	PanSpeed  float64 `yaml:"pan_speed"`
	Distance  float64 `yaml:"distance"`
}

// TelemetryConfig holds stats and output settings.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds of sim time per motion window
	PerfWindow  int     `yaml:"perf_window"`  // ticks per perf rolling window
	LogInterval int     `yaml:"log_interval"` // ticks between perf log lines (0 = off)
	OutputDir   string  `yaml:"output_dir"`
}

// MetricsConfig holds the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the HTTP listener
	Path string `yaml:"path"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32          float32
	ScreenW32     float32
	ScreenH32     float32
	WorldW32      float32
	WorldH32      float32
	FenceTimeout  time.Duration
	IndexTimeout  time.Duration
	RenderTimeout time.Duration
	MemoryLimit   int64
}

// global holds the configuration loaded by Init.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file are overwritten.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run.
func (c *Config) Validate() error {
	switch {
	case c.World.Particles <= 0:
		return fmt.Errorf("%w: world.particles must be positive, got %d", ErrInvalid, c.World.Particles)
	case c.World.MaxParticles > 0 && c.World.Particles > c.World.MaxParticles:
		return fmt.Errorf("%w: world.particles %d exceeds max_particles %d", ErrInvalid, c.World.Particles, c.World.MaxParticles)
	case c.World.Width <= 0 || c.World.Height <= 0:
		return fmt.Errorf("%w: world size must be positive, got %vx%v", ErrInvalid, c.World.Width, c.World.Height)
	case c.Pipeline.BufferSets != 2 && c.Pipeline.BufferSets != 3:
		return fmt.Errorf("%w: pipeline.buffer_sets must be 2 or 3, got %d", ErrInvalid, c.Pipeline.BufferSets)
	case c.Pipeline.Backend != "soft" && c.Pipeline.Backend != "gl":
		return fmt.Errorf("%w: pipeline.backend must be soft or gl, got %q", ErrInvalid, c.Pipeline.Backend)
	case c.Pipeline.WorkgroupSize < 1:
		return fmt.Errorf("%w: pipeline.workgroup_size must be positive, got %d", ErrInvalid, c.Pipeline.WorkgroupSize)
	case c.Pipeline.FenceTimeoutMS < 0 || c.Pipeline.IndexTimeoutMS < 0 || c.Pipeline.RenderTimeoutMS < 0:
		return fmt.Errorf("%w: fence timeouts must not be negative", ErrInvalid)
	case c.Simulation.Damping < 0 || c.Simulation.Damping > 1:
		return fmt.Errorf("%w: simulation.damping must be in [0,1], got %v", ErrInvalid, c.Simulation.Damping)
	case c.Simulation.MinDistance <= 0:
		return fmt.Errorf("%w: simulation.min_distance must be positive, got %v", ErrInvalid, c.Simulation.MinDistance)
	case c.Simulation.DT <= 0:
		return fmt.Errorf("%w: simulation.dt must be positive, got %v", ErrInvalid, c.Simulation.DT)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Simulation.DT)
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)
	c.Derived.WorldW32 = float32(c.World.Width)
	c.Derived.WorldH32 = float32(c.World.Height)
	c.Derived.FenceTimeout = millis(c.Pipeline.FenceTimeoutMS)
	c.Derived.IndexTimeout = millis(c.Pipeline.IndexTimeoutMS)
	c.Derived.RenderTimeout = millis(c.Pipeline.RenderTimeoutMS)
	c.Derived.MemoryLimit = int64(c.Pipeline.MemoryLimitMB) << 20
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
