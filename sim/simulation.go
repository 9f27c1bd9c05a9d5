package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/particles"
	"github.com/pthm-cable/swarm/renderer"
	"github.com/pthm-cable/swarm/ring"
)

var (
	// ErrNotInitialized is returned by operations called before Init.
	ErrNotInitialized = errors.New("sim: not initialized")
	// ErrNoRenderer is returned by Render on a simulation built without a
	// render backend.
	ErrNoRenderer = errors.New("sim: no render backend")
	// ErrNotHostVisible is returned by ReadBack on devices whose buffers
	// cannot be mapped.
	ErrNotHostVisible = errors.New("sim: device buffers are not host visible")
)

// Simulation is a particle simulation driven one frame at a time.
type Simulation interface {
	Init() error
	Update(dt float32) (TickResult, error)
	Render(view, projection mgl32.Mat4) error
	SetGravityPoint(x, y float32)
	ParticleCount() int
	TimeScale() float32
	SetTimeScale(v float32)
	AttractionStrength() float32
	SetAttractionStrength(v float32)
	Close() error
}

// Config describes a ParticleSimulation.
type Config struct {
	Count  int
	Bounds particles.Bounds
	Seed   uint32
	// Sets is the ring size, 2 or 3.
	Sets int
	// MaxParticles caps Count (0 = particles.MaxParticles).
	MaxParticles int
	BulkSeed     bool

	Params Params

	// FenceTimeout bounds the stepper's compute-target wait, IndexTimeout its
	// far-field wait and RenderTimeout the render wait.
	FenceTimeout  time.Duration
	IndexTimeout  time.Duration
	RenderTimeout time.Duration
	LocalSize     int

	// Backend draws frames; nil runs headless.
	Backend renderer.Backend

	Logger   *slog.Logger
	Phases   Phases
	Observer Observer
}

// ParticleSimulation composes the particle store, the buffer ring, the
// stepper and the renderer over one device.
type ParticleSimulation struct {
	dev    gpu.Device
	cfg    Config
	params *ParamStore
	logger *slog.Logger

	store    *particles.Store
	ring     *ring.Ring
	stepper  *Stepper
	renderer *renderer.Renderer
}

var _ Simulation = (*ParticleSimulation)(nil)

// NewParticleSimulation returns an uninitialized simulation on dev.
func NewParticleSimulation(dev gpu.Device, cfg Config) *ParticleSimulation {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sets == 0 {
		cfg.Sets = 3
	}
	return &ParticleSimulation{
		dev:    dev,
		cfg:    cfg,
		params: NewParamStore(cfg.Params),
		logger: logger,
	}
}

// Init seeds the population and builds the pipeline. On failure every
// resource created so far is released.
func (s *ParticleSimulation) Init() (err error) {
	if s.stepper != nil {
		return nil
	}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	s.store, err = particles.NewStore(s.dev, particles.Options{
		Count:  s.cfg.Count,
		Bounds: s.cfg.Bounds,
		Seed:   s.cfg.Seed,
		Sets:   s.cfg.Sets,
		Max:    s.cfg.MaxParticles,
		Bulk:   s.cfg.BulkSeed,
		Logger: s.logger,
	})
	if err != nil {
		return fmt.Errorf("init particles: %w", err)
	}

	s.ring, err = ring.New(s.store.Sets())
	if err != nil {
		return fmt.Errorf("init ring: %w", err)
	}

	s.stepper, err = NewStepper(s.dev, s.ring, s.params, s.store.Count(), StepperOptions{
		FenceTimeout: s.cfg.FenceTimeout,
		IndexTimeout: s.cfg.IndexTimeout,
		LocalSize:    s.cfg.LocalSize,
		Logger:       s.logger,
		Phases:       s.cfg.Phases,
		Observer:     s.cfg.Observer,
	})
	if err != nil {
		return fmt.Errorf("init stepper: %w", err)
	}

	if s.cfg.Backend != nil {
		var fo renderer.FenceObserver
		if s.cfg.Observer != nil {
			fo = s.cfg.Observer
		}
		s.renderer = renderer.New(s.dev, s.ring, s.cfg.Backend, s.store.Count(), renderer.Options{
			FenceTimeout: s.cfg.RenderTimeout,
			Observer:     fo,
			Logger:       s.logger,
		})
	}
	return nil
}

func (s *ParticleSimulation) release() {
	if s.stepper != nil {
		s.stepper.Release()
		s.stepper = nil
	}
	switch {
	case s.ring != nil:
		s.ring.Release()
	case s.store != nil:
		s.store.Release()
	}
	s.ring = nil
	s.store = nil
	s.renderer = nil
}

// Update advances one tick.
func (s *ParticleSimulation) Update(dt float32) (TickResult, error) {
	if s.stepper == nil {
		return TickSkipped, ErrNotInitialized
	}
	return s.stepper.Tick(dt)
}

// Render draws the render-source set. renderer.ErrFrameNotReady means the
// previous frame should stay on screen.
func (s *ParticleSimulation) Render(view, projection mgl32.Mat4) error {
	if s.ring == nil {
		return ErrNotInitialized
	}
	if s.renderer == nil {
		return ErrNoRenderer
	}
	return s.renderer.Draw(s.ring.RenderSource(), view, projection)
}

// ReadBack calls fn with host views of the most recently computed positions
// and speeds. It waits at most timeout for that set's fence; on timeout it
// returns renderer.ErrFrameNotReady without calling fn. fn must not retain
// the slices.
func (s *ParticleSimulation) ReadBack(timeout time.Duration, fn func(positions, speeds []float32)) error {
	if s.ring == nil {
		return ErrNotInitialized
	}
	mapper, ok := s.dev.(gpu.HostMapper)
	if !ok {
		return ErrNotHostVisible
	}
	id := s.ring.PendingRead()
	switch s.ring.Wait(id, timeout) {
	case gpu.TimedOut:
		return renderer.ErrFrameNotReady
	case gpu.Failed:
		return fmt.Errorf("%w: set %d", ErrFenceFailed, id)
	}
	set := s.ring.Set(id)
	pos, err := mapper.Map(set.Positions)
	if err != nil {
		return err
	}
	spd, err := mapper.Map(set.Speeds)
	if err != nil {
		return err
	}
	fn(pos, spd)
	return nil
}

// SetGravityPoint moves the attraction point, effective from the next tick.
func (s *ParticleSimulation) SetGravityPoint(x, y float32) { s.params.SetGravityPoint(x, y) }

// ParticleCount is the population size.
func (s *ParticleSimulation) ParticleCount() int {
	if s.store == nil {
		return s.cfg.Count
	}
	return s.store.Count()
}

func (s *ParticleSimulation) TimeScale() float32     { return s.params.TimeScale() }
func (s *ParticleSimulation) SetTimeScale(v float32) { s.params.SetTimeScale(v) }

func (s *ParticleSimulation) AttractionStrength() float32 { return s.params.AttractionStrength() }
func (s *ParticleSimulation) SetAttractionStrength(v float32) {
	s.params.SetAttractionStrength(v)
}

// Params is the live parameter block.
func (s *ParticleSimulation) Params() *ParamStore { return s.params }

// Stepper is the tick state machine, nil before Init.
func (s *ParticleSimulation) Stepper() *Stepper { return s.stepper }

// Ring is the buffer ring, nil before Init.
func (s *ParticleSimulation) Ring() *ring.Ring { return s.ring }

// Renderer is nil when running headless.
func (s *ParticleSimulation) Renderer() *renderer.Renderer { return s.renderer }

// Bounds is the seeding rectangle.
func (s *ParticleSimulation) Bounds() particles.Bounds { return s.cfg.Bounds }

// Close waits briefly for in-flight work and releases every resource. The
// device itself is owned by the caller.
func (s *ParticleSimulation) Close() error {
	if s.ring != nil {
		for i := 0; i < s.ring.Len(); i++ {
			if st := s.ring.Wait(i, time.Second); st == gpu.TimedOut {
				s.logger.Warn("closing with work in flight", "set", i)
			}
		}
	}
	s.release()
	return nil
}
