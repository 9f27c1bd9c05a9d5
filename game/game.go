// Package game runs the particle simulation inside a raylib window, or
// headless, and wires telemetry, metrics and the control surface around it.
package game

import (
	"errors"
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/swarm/camera"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/metrics"
	"github.com/pthm-cable/swarm/renderer"
	"github.com/pthm-cable/swarm/sim"
	"github.com/pthm-cable/swarm/telemetry"
	"github.com/pthm-cable/swarm/ui"
)

// Game holds the complete application state.
type Game struct {
	cfg    *config.Config
	logger *slog.Logger

	pipe *pipeline
	sim  *sim.ParticleSimulation

	// Windowed only
	camera    *camera.Camera
	backdrop  *renderer.Backdrop
	hud       *ui.HUD
	controls  *ui.ControlPanel
	perfPanel *ui.PerfPanel
	frames    [2]rl.RenderTexture2D
	front     int
	showPerf  bool

	// Telemetry
	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	metrics       *metrics.Pipeline
	logStats      bool
	statsCallback func(telemetry.MotionStats)

	// State
	tick     uint64
	paused   bool
	headless bool

	// Window dimensions
	screenWidth, screenHeight float32
}

// NewGame builds the device, the simulation and its collaborators. In
// windowed mode the raylib window must already be open.
func NewGame(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backend := opts.Backend
	if backend == "" {
		backend = cfg.Pipeline.Backend
	}

	g := &Game{
		cfg:           cfg,
		logger:        logger,
		headless:      opts.Headless,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.DT32),
		screenWidth:   cfg.Derived.ScreenW32,
		screenHeight:  cfg.Derived.ScreenH32,
	}

	pipe, err := newPipeline(backend, cfg, opts.Headless, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s device: %w", backend, err)
	}
	g.pipe = pipe

	simCfg := SimConfig(cfg)
	simCfg.Backend = pipe.backend
	simCfg.Logger = logger
	simCfg.Phases = g.perfCollector
	if opts.Registry != nil {
		g.metrics = metrics.New(opts.Registry)
		simCfg.Observer = g.metrics
	}

	g.sim = sim.NewParticleSimulation(pipe.dev, simCfg)
	if err := g.sim.Init(); err != nil {
		g.closeDevice()
		return nil, err
	}
	if g.metrics != nil {
		g.metrics.Particles.Set(float64(g.sim.ParticleCount()))
		g.metrics.BufferSets.Set(float64(g.sim.Ring().Len()))
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.Telemetry.OutputDir
	}
	g.outputManager, err = telemetry.NewOutputManager(outputDir)
	if err != nil {
		g.Unload()
		return nil, err
	}
	if err := g.outputManager.WriteConfig(cfg); err != nil {
		g.logger.Error("failed to write config", "error", err)
	}

	if !opts.Headless {
		g.initView()
	}

	logger.Info("simulation ready",
		"device", pipe.dev.Name(),
		"particles", g.sim.ParticleCount(),
		"buffer_sets", g.sim.Ring().Len(),
		"headless", opts.Headless,
		"output_dir", g.outputManager.Dir(),
	)
	return g, nil
}

// initView creates the camera, UI and frame targets.
func (g *Game) initView() {
	c := g.cfg.Camera
	g.camera = camera.New(g.screenWidth, g.screenHeight, camera.Options{
		Zoom:      float32(c.Zoom),
		MinZoom:   float32(c.MinZoom),
		MaxZoom:   float32(c.MaxZoom),
		ZoomSpeed: float32(c.ZoomSpeed),
		PanSpeed:  float32(c.PanSpeed),
		Distance:  float32(c.Distance),
	})
	g.backdrop = renderer.NewBackdrop(int32(g.screenWidth), int32(g.screenHeight))
	g.hud = ui.NewHUD()
	g.controls = ui.NewControlPanel(10, 10, 330, ui.ParamControls(g.sim.Params()))
	g.controls.OnReset = g.camera.Reset
	g.perfPanel = ui.NewPerfPanel(int32(g.screenWidth)-340, 160, 330)
	g.loadFrames()
}

// loadFrames allocates the two targets particles are drawn into. A frame
// whose fence is late leaves the other target on screen.
func (g *Game) loadFrames() {
	for i := range g.frames {
		if g.frames[i].ID != 0 {
			rl.UnloadRenderTexture(g.frames[i])
		}
		g.frames[i] = rl.LoadRenderTexture(int32(g.screenWidth), int32(g.screenHeight))
	}
}

// Update handles input and advances one tick.
func (g *Game) Update() {
	g.handleInput()
	g.camera.Update(rl.GetFrameTime())

	if g.paused {
		return
	}
	g.step()
}

// UpdateHeadless advances one tick without input or drawing.
func (g *Game) UpdateHeadless() {
	g.step()
}

// step runs a single tick of the simulation.
func (g *Game) step() {
	g.perfCollector.StartTick()
	res, err := g.sim.Update(g.cfg.Derived.DT32)
	skipped := res == sim.TickSkipped
	g.perfCollector.EndTick(skipped)
	g.collector.RecordTick(skipped)

	if err != nil {
		if errors.Is(err, sim.ErrFenceFailed) {
			g.logger.Warn("fence failed, tick abandoned", "tick", g.tick, "error", err)
		} else {
			g.logger.Error("tick failed", "tick", g.tick, "error", err)
		}
	}
	if skipped {
		return
	}
	g.tick++

	g.flushTelemetry()
	if n := g.cfg.Telemetry.LogInterval; n > 0 && g.tick%uint64(n) == 0 {
		g.logPerfStats()
	}
}

// Tick returns the number of ticks that advanced the simulation.
func (g *Game) Tick() uint64 {
	return g.tick
}

// Simulation exposes the running simulation.
func (g *Game) Simulation() *sim.ParticleSimulation {
	return g.sim
}

// Unload releases all resources.
func (g *Game) Unload() {
	if g.sim != nil {
		if err := g.sim.Close(); err != nil {
			g.logger.Error("closing simulation", "error", err)
		}
	}
	for i := range g.frames {
		if g.frames[i].ID != 0 {
			rl.UnloadRenderTexture(g.frames[i])
			g.frames[i] = rl.RenderTexture2D{}
		}
	}
	g.closeDevice()
	if err := g.outputManager.Close(); err != nil {
		g.logger.Error("closing output", "error", err)
	}
}

func (g *Game) closeDevice() {
	if g.pipe == nil {
		return
	}
	g.pipe.unload()
	if err := g.pipe.dev.Close(); err != nil {
		g.logger.Error("closing device", "error", err)
	}
	g.pipe = nil
}
