// Package sim advances the particle population one tick at a time on a
// compute device and exposes the whole pipeline as a Simulation.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/quadtree"
	"github.com/pthm-cable/swarm/ring"
	"github.com/pthm-cable/swarm/telemetry"
)

// ErrFenceFailed is returned when a fence guarding the compute target can
// never signal, typically after device loss.
var ErrFenceFailed = errors.New("sim: fence failed")

// State is a stage of the per-tick state machine.
type State uint8

const (
	StateIdle State = iota
	StateUploading
	StateDispatching
	StateBarrier
	StateRotated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateDispatching:
		return "dispatching"
	case StateBarrier:
		return "barrier"
	case StateRotated:
		return "rotated"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// TickResult reports what a tick did.
type TickResult uint8

const (
	// TickAdvanced means a dispatch was submitted and the ring rotated.
	TickAdvanced TickResult = iota
	// TickSkipped means a fence was not ready in time; nothing was submitted
	// and the ring is unchanged.
	TickSkipped
)

func (r TickResult) String() string {
	if r == TickAdvanced {
		return "advanced"
	}
	return "skipped"
}

// Phases receives the stage boundaries of a tick. telemetry.PerfCollector
// implements it.
type Phases interface {
	StartPhase(phase string)
}

// Observer receives per-tick measurements.
type Observer interface {
	ObserveFenceWait(role ring.Role, status gpu.WaitStatus, waited time.Duration)
	ObserveTick(result TickResult, took time.Duration)
	ObserveTree(nodes, dropped, overflow int)
}

type nopPhases struct{}

func (nopPhases) StartPhase(string) {}

type nopObserver struct{}

func (nopObserver) ObserveFenceWait(ring.Role, gpu.WaitStatus, time.Duration) {}
func (nopObserver) ObserveTick(TickResult, time.Duration)                     {}
func (nopObserver) ObserveTree(int, int, int)                                 {}

// DefaultFenceTimeout bounds the compute-target fence wait of a tick.
const DefaultFenceTimeout = 2 * time.Millisecond

// StepperOptions configures a Stepper.
type StepperOptions struct {
	// FenceTimeout bounds the compute-target fence wait. Zero polls.
	FenceTimeout time.Duration
	// IndexTimeout bounds the pending-read wait before a far-field rebuild.
	// That fence belongs to the dispatch submitted on the previous tick, so
	// it needs longer than FenceTimeout. Values below FenceTimeout are
	// raised to it.
	IndexTimeout time.Duration
	// LocalSize is the work group edge (default DefaultLocalSize).
	LocalSize int
	Logger    *slog.Logger
	Phases    Phases
	Observer  Observer
}

// Stepper drives one tick of the pipeline:
//
//	Idle -> Uploading -> Dispatching -> Barrier -> Rotated -> Idle
//
// It is not safe for concurrent use; a single control goroutine owns it.
type Stepper struct {
	dev    gpu.Device
	ring   *ring.Ring
	params *ParamStore
	prog   gpu.Program
	count  int
	grid   gpu.Grid
	batch  int
	opts   StepperOptions
	logger *slog.Logger

	tree *quadtree.Tree
	far  FarField

	state   State
	ticks   uint64
	skipped uint64
}

// NewStepper compiles the force program on dev and returns a stepper over r.
func NewStepper(dev gpu.Device, r *ring.Ring, params *ParamStore, count int, opts StepperOptions) (*Stepper, error) {
	if count <= 0 {
		return nil, fmt.Errorf("sim: particle count must be positive, got %d", count)
	}
	if opts.LocalSize < 1 {
		opts.LocalSize = DefaultLocalSize
	}
	if opts.IndexTimeout < opts.FenceTimeout {
		opts.IndexTimeout = opts.FenceTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Phases == nil {
		opts.Phases = nopPhases{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	prog, err := dev.CompileProgram(ForceProgram(opts.LocalSize))
	if err != nil {
		return nil, fmt.Errorf("compile force program: %w", err)
	}
	grid, batch := gpu.FoldGrid(count, opts.LocalSize)

	opts.Logger.Info("stepper ready",
		"device", dev.Name(),
		"particles", count,
		"sets", r.Len(),
		"grid_x", grid.X,
		"grid_y", grid.Y,
		"batch", batch,
	)

	return &Stepper{
		dev:    dev,
		ring:   r,
		params: params,
		prog:   prog,
		count:  count,
		grid:   grid,
		batch:  batch,
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

// State is the current state; Idle between ticks.
func (s *Stepper) State() State { return s.state }

// Ticks counts advanced ticks.
func (s *Stepper) Ticks() uint64 { return s.ticks }

// Skipped counts skipped ticks.
func (s *Stepper) Skipped() uint64 { return s.skipped }

// Grid is the dispatch grid and the invocations per group.
func (s *Stepper) Grid() (gpu.Grid, int) { return s.grid, s.batch }

// Tree is the far-field index, nil until the first far-field tick.
func (s *Stepper) Tree() *quadtree.Tree { return s.tree }

// Tick advances the simulation by dt seconds.
//
// A fence that does not signal within the timeout skips the tick and leaves
// the ring untouched. Errors leave the stepper Idle with nothing published.
func (s *Stepper) Tick(dt float32) (TickResult, error) {
	start := time.Now()
	res, err := s.tick(dt)
	s.state = StateIdle
	if res == TickSkipped {
		s.skipped++
	} else {
		s.ticks++
	}
	s.opts.Observer.ObserveTick(res, time.Since(start))
	return res, err
}

func (s *Stepper) tick(dt float32) (TickResult, error) {
	target := s.ring.ComputeTarget()
	source := s.ring.PendingRead()

	s.state = StateIdle
	s.opts.Phases.StartPhase(telemetry.PhaseWait)
	if ok, err := s.wait(target, ring.RoleComputeTarget, s.opts.FenceTimeout); !ok {
		return TickSkipped, err
	}

	s.state = StateUploading
	s.opts.Phases.StartPhase(telemetry.PhaseUpload)
	p := s.params.Snapshot()

	var aux any
	if p.FarField {
		if mapper, ok := s.dev.(gpu.HostMapper); ok {
			s.opts.Phases.StartPhase(telemetry.PhaseIndex)
			// The previous dispatch read the tree; its fence is on the
			// pending-read set, so the rebuild below cannot race it.
			if ok, err := s.wait(source, ring.RolePendingRead, s.opts.IndexTimeout); !ok {
				return TickSkipped, err
			}
			if err := s.rebuild(mapper, s.ring.Set(source)); err != nil {
				return TickSkipped, err
			}
			s.far = FarField{Tree: s.tree, Theta: p.Theta}
			aux = &s.far
		}
	}
	uniforms := Uniforms(p, dt, s.count, s.batch)

	s.state = StateDispatching
	s.opts.Phases.StartPhase(telemetry.PhaseDispatch)
	in, out := s.ring.Set(source), s.ring.Set(target)
	err := s.dev.Dispatch(s.prog, s.grid, gpu.Bindings{
		Buffers: []gpu.Buffer{
			BindInPositions:   in.Positions,
			BindInVelocities:  in.Velocities,
			BindOutPositions:  out.Positions,
			BindOutVelocities: out.Velocities,
			BindSpeeds:        out.Speeds,
		},
		Uniforms: uniforms,
		Aux:      aux,
	})
	if err != nil {
		return TickSkipped, fmt.Errorf("dispatch into set %d: %w", target, err)
	}

	s.state = StateBarrier
	s.opts.Phases.StartPhase(telemetry.PhaseBarrier)
	s.dev.MemoryBarrier()

	s.state = StateRotated
	s.opts.Phases.StartPhase(telemetry.PhaseRotate)
	f, err := s.dev.InsertFence()
	if err != nil {
		return TickSkipped, fmt.Errorf("fence for set %d: %w", target, err)
	}
	if err := s.ring.Publish(target, f); err != nil {
		f.Release()
		return TickSkipped, err
	}
	s.ring.Rotate()
	return TickAdvanced, nil
}

// wait retires the fence on set id within timeout. It reports false when the
// tick must be skipped, with an error only if the fence failed.
func (s *Stepper) wait(id int, role ring.Role, timeout time.Duration) (bool, error) {
	start := time.Now()
	st := s.ring.Wait(id, timeout)
	s.opts.Observer.ObserveFenceWait(role, st, time.Since(start))

	switch st {
	case gpu.Signaled:
		return true, nil
	case gpu.TimedOut:
		s.logger.Debug("fence not ready, skipping tick", "set", id, "role", role.String())
		return false, nil
	default:
		s.logger.Warn("fence failed", "set", id, "role", role.String())
		return false, fmt.Errorf("%w: set %d (%s)", ErrFenceFailed, id, role)
	}
}

// rebuild indexes the positions of set.
func (s *Stepper) rebuild(mapper gpu.HostMapper, set *ring.BufferSet) error {
	positions, err := mapper.Map(set.Positions)
	if err != nil {
		return fmt.Errorf("map positions of set %d: %w", set.ID, err)
	}
	positions = positions[:2*s.count]
	if s.tree == nil {
		s.tree = quadtree.New(s.count)
	}
	if err := s.tree.Build(positions, extent(positions)); err != nil {
		return fmt.Errorf("index set %d: %w", set.ID, err)
	}
	s.opts.Observer.ObserveTree(s.tree.Len(), s.tree.Dropped(), s.tree.Overflow())
	return nil
}

// extent returns the smallest half-open rectangle holding every finite
// position, widened to a unit square when all points coincide.
func extent(positions []float32) quadtree.Rect {
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for i := 0; i+1 < len(positions); i += 2 {
		x, y := positions[i], positions[i+1]
		if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) ||
			math.IsInf(float64(x), 0) || math.IsInf(float64(y), 0) {
			continue
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	if minX > maxX {
		return quadtree.Centered(1, 1)
	}
	if maxX-minX <= 0 {
		minX, maxX = minX-0.5, maxX+0.5
	}
	if maxY-minY <= 0 {
		minY, maxY = minY-0.5, maxY+0.5
	}
	up := float32(math.Inf(1))
	return quadtree.Rect{
		MinX: minX,
		MinY: minY,
		MaxX: math.Nextafter32(maxX, up),
		MaxY: math.Nextafter32(maxY, up),
	}
}

// Release frees the force program and the index arena. The ring is not
// owned by the stepper.
func (s *Stepper) Release() {
	if s.prog != nil {
		s.prog.Release()
		s.prog = nil
	}
	if s.tree != nil {
		s.tree.Cleanup()
		s.tree = nil
	}
}
