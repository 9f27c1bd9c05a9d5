// Package renderer draws the render-source buffer set once per frame.
package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/ring"
)

// ErrFrameNotReady is returned when the render-source fence did not signal
// in time. The caller keeps the previous frame on screen.
var ErrFrameNotReady = errors.New("renderer: frame not ready")

// Backend issues the instanced point draw.
type Backend interface {
	DrawInstanced(positions, speeds gpu.Buffer, count int, view, projection mgl32.Mat4) error
}

// FenceObserver receives the outcome of each render fence wait.
type FenceObserver interface {
	ObserveFenceWait(role ring.Role, status gpu.WaitStatus, waited time.Duration)
}

// Options configures a Renderer.
type Options struct {
	// FenceTimeout bounds the wait on the render-source fence. Zero polls.
	FenceTimeout time.Duration
	Observer     FenceObserver
	Logger       *slog.Logger
}

// Renderer waits for a buffer set to be complete, draws it, then publishes a
// fence so the set is not overwritten while the draw is in flight.
type Renderer struct {
	dev     gpu.Device
	ring    *ring.Ring
	backend Backend
	count   int
	opts    Options
	logger  *slog.Logger

	frames  uint64
	dropped uint64
}

// New returns a renderer drawing count particles from sets of r.
func New(dev gpu.Device, r *ring.Ring, backend Backend, count int, opts Options) *Renderer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		dev:     dev,
		ring:    r,
		backend: backend,
		count:   count,
		opts:    opts,
		logger:  logger,
	}
}

// Draw renders set id with the given matrices.
func (r *Renderer) Draw(id int, view, projection mgl32.Mat4) error {
	set := r.ring.Set(id)
	if set == nil {
		return fmt.Errorf("%w: %d", ring.ErrUnknownSet, id)
	}

	start := time.Now()
	st := r.ring.Wait(id, r.opts.FenceTimeout)
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveFenceWait(ring.RoleRenderSource, st, time.Since(start))
	}
	switch st {
	case gpu.TimedOut:
		r.dropped++
		r.logger.Debug("render fence not ready", "set", id)
		return ErrFrameNotReady
	case gpu.Failed:
		r.dropped++
		return fmt.Errorf("%w: fence on set %d failed", ErrFrameNotReady, id)
	}

	if err := r.backend.DrawInstanced(set.Positions, set.Speeds, r.count, view, projection); err != nil {
		return fmt.Errorf("draw set %d: %w", id, err)
	}

	f, err := r.dev.InsertFence()
	if err != nil {
		return fmt.Errorf("render fence: %w", err)
	}
	if err := r.ring.Publish(id, f); err != nil {
		f.Release()
		return err
	}
	r.frames++
	return nil
}

// Frames counts completed draws.
func (r *Renderer) Frames() uint64 { return r.frames }

// Dropped counts draws abandoned because the set was not ready.
func (r *Renderer) Dropped() uint64 { return r.dropped }
