// Package ring rotates particle buffer sets between the compute pass and the
// render pass.
//
// Each tick the compute pass reads the pending-read set and writes the
// compute-target set, then the ring rotates one step so the set just written
// becomes pending-read and is drawn on the following frame. Completion fences
// attached to each set gate its reuse; the ring never touches roles while a
// wait is in progress and performs no speculative reuse.
package ring

import (
	"errors"
	"fmt"
	"time"

	"github.com/pthm-cable/swarm/gpu"
)

var (
	ErrRingSize         = errors.New("ring: buffer set count must be 2 or 3")
	ErrFenceOutstanding = errors.New("ring: previous fence not retired")
	ErrUnknownSet       = errors.New("ring: unknown buffer set")
)

// Role is the purpose a buffer set currently serves.
type Role uint8

const (
	RoleComputeTarget Role = iota
	RolePendingRead
	RoleRenderSource
)

func (r Role) String() string {
	switch r {
	case RoleComputeTarget:
		return "compute-target"
	case RolePendingRead:
		return "pending-read"
	case RoleRenderSource:
		return "render-source"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// BufferSet is one full copy of particle state on the device.
type BufferSet struct {
	ID         int
	Positions  gpu.Buffer // x,y pairs
	Velocities gpu.Buffer // x,y pairs
	Speeds     gpu.Buffer // |v| per particle, read by rendering only

	fence gpu.FenceSlot
}

// FencePending reports whether work touching the set may still be in flight.
func (s *BufferSet) FencePending() bool {
	return s.fence.Pending()
}

// Release frees the set's buffers and any fence it holds.
func (s *BufferSet) Release() {
	s.fence.Release()
	for _, b := range []gpu.Buffer{s.Positions, s.Velocities, s.Speeds} {
		if b != nil {
			b.Release()
		}
	}
}

// Ring assigns roles to N buffer sets.
//
// With head h: compute-target is h, pending-read is h-1 and render-source is
// h-2 (mod N). For N=2 the pending-read set also serves as render-source.
type Ring struct {
	sets      []*BufferSet
	head      int
	rotations uint64
}

// New builds a ring over sets. Set IDs are reassigned to their index.
func New(sets []*BufferSet) (*Ring, error) {
	if len(sets) != 2 && len(sets) != 3 {
		return nil, fmt.Errorf("%w: got %d", ErrRingSize, len(sets))
	}
	for i, s := range sets {
		if s == nil {
			return nil, fmt.Errorf("ring: set %d is nil", i)
		}
		s.ID = i
	}
	return &Ring{sets: sets}, nil
}

// Len is N.
func (r *Ring) Len() int { return len(r.sets) }

// Rotations counts calls to Rotate.
func (r *Ring) Rotations() uint64 { return r.rotations }

// ComputeTarget returns the set the next dispatch writes. The caller must
// Wait on it before submitting work.
func (r *Ring) ComputeTarget() int { return r.head }

// PendingRead returns the set most recently written.
func (r *Ring) PendingRead() int { return r.offset(1) }

// RenderSource returns the set the renderer draws.
func (r *Ring) RenderSource() int {
	if len(r.sets) == 2 {
		return r.offset(1)
	}
	return r.offset(2)
}

func (r *Ring) offset(back int) int {
	n := len(r.sets)
	return ((r.head-back)%n + n) % n
}

// Set returns the buffer set with the given id, or nil.
func (r *Ring) Set(id int) *BufferSet {
	if id < 0 || id >= len(r.sets) {
		return nil
	}
	return r.sets[id]
}

// Role returns the role held by set id. For N=2 the shared set reports
// RolePendingRead.
func (r *Ring) Role(id int) Role {
	switch id {
	case r.ComputeTarget():
		return RoleComputeTarget
	case r.PendingRead():
		return RolePendingRead
	default:
		return RoleRenderSource
	}
}

// Roles returns the role of every set, indexed by set id.
func (r *Ring) Roles() []Role {
	roles := make([]Role, len(r.sets))
	for i := range r.sets {
		roles[i] = r.Role(i)
	}
	return roles
}

// Publish attaches f to set id. The set's previous fence must have been
// retired by a signalled Wait; otherwise ErrFenceOutstanding is returned
// and f is not adopted.
func (r *Ring) Publish(id int, f gpu.Fence) error {
	s := r.Set(id)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSet, id)
	}
	if !s.fence.Set(f) {
		return fmt.Errorf("set %d: %w", id, ErrFenceOutstanding)
	}
	return nil
}

// Wait blocks until the fence on set id signals or timeout elapses. A set
// without a fence is ready. A signalled fence is released; a timed-out fence
// is kept for the next attempt; a failed fence is dropped since it can never
// signal. Roles are never changed.
func (r *Ring) Wait(id int, timeout time.Duration) gpu.WaitStatus {
	s := r.Set(id)
	if s == nil {
		return gpu.Failed
	}
	st := s.fence.Wait(timeout)
	if st == gpu.Failed {
		s.fence.Release()
	}
	return st
}

// Rotate advances every role one step: compute-target becomes pending-read,
// pending-read becomes render-source and render-source becomes the next
// compute-target.
func (r *Ring) Rotate() {
	r.head = (r.head + 1) % len(r.sets)
	r.rotations++
}

// Release frees every set.
func (r *Ring) Release() {
	for _, s := range r.sets {
		s.Release()
	}
}
