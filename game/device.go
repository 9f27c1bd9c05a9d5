package game

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/gpu/glcompute"
	"github.com/pthm-cable/swarm/gpu/soft"
	"github.com/pthm-cable/swarm/renderer"
)

// ErrNeedsWindow is returned when the GL backend is requested headless.
var ErrNeedsWindow = errors.New("game: gl backend needs a window")

// pipeline is the device plus the draw backend bound to it.
type pipeline struct {
	dev     gpu.Device
	backend renderer.Backend // nil headless
	unload  func()
}

// newPipeline opens the named device. For "gl" a window must already be open
// on this goroutine.
func newPipeline(name string, cfg *config.Config, headless bool, logger *slog.Logger) (*pipeline, error) {
	palette := renderer.NewPalette()
	maxSpeed := float32(cfg.Screen.ColorMaxSpeed)
	pointSize := float32(cfg.Screen.PointSize)

	switch name {
	case "soft":
		dev := soft.New(soft.Options{
			Workers:     cfg.Pipeline.Workers,
			MemoryLimit: cfg.Derived.MemoryLimit,
			Logger:      logger,
		})
		p := &pipeline{dev: dev, unload: func() {}}
		if !headless {
			b := renderer.NewRaylibBackend(dev, palette, int32(cfg.Screen.Width), int32(cfg.Screen.Height), maxSpeed, pointSize)
			b.MaxPoints = cfg.Screen.MaxDrawPoints
			p.backend = b
		}
		return p, nil

	case "gl":
		if headless {
			return nil, ErrNeedsWindow
		}
		dev, err := glcompute.New(logger)
		if err != nil {
			return nil, err
		}
		points, err := glcompute.NewPointRenderer(dev, palette.Floats(), maxSpeed, pointSize)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("point renderer: %w", err)
		}
		return &pipeline{dev: dev, backend: points, unload: points.Unload}, nil
	}
	return nil, fmt.Errorf("game: unknown backend %q", name)
}

// resize keeps host-side projection in step with the window.
func (p *pipeline) resize(w, h float32) {
	if b, ok := p.backend.(*renderer.RaylibBackend); ok {
		b.ScreenW, b.ScreenH = w, h
	}
}
