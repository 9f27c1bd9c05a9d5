// Package gpu defines the compute-device abstraction the simulation core
// drives: buffers, compute programs, dispatches, memory barriers and fences.
//
// Backends live in subpackages: gpu/soft runs kernels on a goroutine pool
// with a strictly ordered command queue, gpu/glcompute drives an OpenGL 4.3
// context. The core only ever talks to the Device interface.
package gpu

import (
	"errors"
	"time"
)

// Errors reported by devices.
var (
	ErrOutOfMemory    = errors.New("gpu: out of device memory")
	ErrShaderBuild    = errors.New("gpu: shader build failed")
	ErrDeviceClosed   = errors.New("gpu: device closed")
	ErrUnknownBuffer  = errors.New("gpu: buffer not owned by device")
	ErrUnknownProgram = errors.New("gpu: program not owned by device")
	ErrBufferReleased = errors.New("gpu: buffer released")
	ErrSizeMismatch   = errors.New("gpu: data size does not match buffer")
	ErrNoKernel       = errors.New("gpu: program has no kernel for this backend")
	ErrNotHostVisible = errors.New("gpu: buffer is not host visible")
)

// Buffer is a device-resident array of float32 values.
type Buffer interface {
	// ID is the backend handle (GL buffer name, or a soft-device counter).
	ID() uint32
	// Len is the number of float32 elements.
	Len() int
	// Label is the debug name given at creation.
	Label() string
	// Release frees the device allocation. Safe to call more than once.
	Release()
}

// Program is a compiled compute program.
type Program interface {
	Name() string
	Release()
}

// Bindings are the inputs of one dispatch. Buffers are bound to storage
// slots in slice order. Aux carries host-only side inputs (e.g. a spatial
// index built on the CPU); backends that cannot consume it ignore it.
type Bindings struct {
	Buffers  []Buffer
	Uniforms Uniforms
	Aux      any
}

// Device is a compute-capable device with an in-order command stream.
//
// Write, Dispatch, MemoryBarrier and InsertFence are enqueued in call order.
// None of them block on device execution; only Fence.Wait does.
type Device interface {
	Name() string
	// NewBuffer allocates a zeroed buffer of n float32 elements.
	NewBuffer(label string, n int) (Buffer, error)
	// Write enqueues a full upload of data into b. len(data) must equal b.Len().
	Write(b Buffer, data []float32) error
	// CompileProgram builds a compute program. Build failures wrap ErrShaderBuild
	// and carry the compiler diagnostics.
	CompileProgram(src ProgramSource) (Program, error)
	// Dispatch enqueues grid.Count() work groups of p.
	Dispatch(p Program, grid Grid, b Bindings) error
	// MemoryBarrier makes writes of previously enqueued dispatches visible to
	// every later command.
	MemoryBarrier()
	// InsertFence enqueues a fence that signals once every previously enqueued
	// command has completed.
	InsertFence() (Fence, error)
	Close() error
}

// HostMapper is implemented by devices whose buffers live in host memory.
// The returned slice aliases device memory; callers must have observed a
// signalled fence for the last command writing b before reading it.
type HostMapper interface {
	Map(b Buffer) ([]float32, error)
}

// HostKernel is the CPU entry point of a compute program. It processes the
// particle index range [start, end) and may be called concurrently for
// disjoint ranges of the same dispatch.
type HostKernel func(start, end int, args *KernelArgs)

// KernelArgs is what a HostKernel sees of a dispatch.
type KernelArgs struct {
	Buffers  [][]float32
	Uniforms Uniforms
	Aux      any
}

// ProgramSource describes a compute program for every backend at once.
// Backends pick the representation they can run.
type ProgramSource struct {
	Name string
	// GLSL is the compute shader source (#version 430).
	GLSL string
	// Host is the host implementation used by in-process devices.
	Host HostKernel
	// LocalSize is the work group edge; a group covers LocalSize*LocalSize
	// invocations. Must match the GLSL local_size_x/local_size_y.
	LocalSize int
}

// WaitStatus is the outcome of a fence wait.
type WaitStatus int

const (
	Signaled WaitStatus = iota
	TimedOut
	Failed
)

func (s WaitStatus) String() string {
	switch s {
	case Signaled:
		return "signaled"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fence signals once all device work enqueued before it has completed.
type Fence interface {
	// Wait blocks until the fence signals or timeout elapses. A timeout of
	// zero polls. Waiting on a released fence reports Failed.
	Wait(timeout time.Duration) WaitStatus
	// Release frees the fence object. Safe to call more than once.
	Release()
}
