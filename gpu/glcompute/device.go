// Package glcompute implements gpu.Device on an OpenGL 4.3 core context.
//
// Buffers are shader storage buffers, dispatches go through glDispatchCompute
// and fences are GL sync objects. Every call must be made on the thread that
// owns the current GL context (the raylib window thread); the driver keeps
// the command stream in order.
package glcompute

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/pthm-cable/swarm/gpu"
)

// barrierBits covers storage writes read back as storage or as vertex
// attributes by the instanced draw.
const barrierBits = gl.SHADER_STORAGE_BARRIER_BIT | gl.VERTEX_ATTRIB_ARRAY_BARRIER_BIT

// Device drives compute work on the current GL context.
type Device struct {
	logger   *slog.Logger
	version  string
	closed   bool
	buffers  map[uint32]*buffer
	programs map[uint32]*program
}

// New loads GL entry points for the current context. A window (or hidden
// window) must already have been created on this thread.
func New(logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("loading GL: %w", err)
	}

	d := &Device{
		logger:   logger,
		version:  gl.GoStr(gl.GetString(gl.VERSION)),
		buffers:  make(map[uint32]*buffer),
		programs: make(map[uint32]*program),
	}
	logger.Info("gl device ready",
		"version", d.version,
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)),
	)
	return d, nil
}

// Name implements gpu.Device.
func (d *Device) Name() string { return "gl " + d.version }

// NewBuffer implements gpu.Device.
func (d *Device) NewBuffer(label string, n int) (gpu.Buffer, error) {
	if d.closed {
		return nil, gpu.ErrDeviceClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("allocating %s: negative length %d", label, n)
	}

	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	if n > 0 {
		zeros := make([]float32, n)
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, n*4, gl.Ptr(zeros), gl.DYNAMIC_COPY)
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &id)
		if code == gl.OUT_OF_MEMORY {
			return nil, fmt.Errorf("allocating %s (%d bytes): %w", label, n*4, gpu.ErrOutOfMemory)
		}
		return nil, fmt.Errorf("allocating %s: gl error 0x%x", label, code)
	}

	b := &buffer{dev: d, id: id, label: label, n: n}
	d.buffers[id] = b
	return b, nil
}

// Write implements gpu.Device. The driver copies data before returning.
func (d *Device) Write(b gpu.Buffer, data []float32) error {
	buf, err := d.own(b)
	if err != nil {
		return err
	}
	if len(data) != buf.n {
		return fmt.Errorf("writing %s: %d values into %d: %w", buf.label, len(data), buf.n, gpu.ErrSizeMismatch)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf.id)
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(data)*4, gl.Ptr(data))
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	return nil
}

// CompileProgram implements gpu.Device. Only the GLSL source is used.
func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	if d.closed {
		return nil, gpu.ErrDeviceClosed
	}
	if src.GLSL == "" {
		return nil, fmt.Errorf("%w: %s: %w", gpu.ErrShaderBuild, src.Name, gpu.ErrNoKernel)
	}
	id, err := linkProgram(src.Name, stage{gl.COMPUTE_SHADER, src.GLSL})
	if err != nil {
		return nil, err
	}
	p := newProgram(d, src.Name, id)
	d.programs[id] = p
	d.logger.Debug("compute program linked", "name", src.Name, "local_size", src.LocalSize)
	return p, nil
}

// Dispatch implements gpu.Device. Bindings.Aux is ignored.
func (d *Device) Dispatch(p gpu.Program, grid gpu.Grid, b gpu.Bindings) error {
	prog, ok := p.(*program)
	if !ok || prog.dev != d || prog.id == 0 {
		return gpu.ErrUnknownProgram
	}

	gl.UseProgram(prog.id)
	prog.apply(b.Uniforms)
	for slot, bb := range b.Buffers {
		buf, err := d.own(bb)
		if err != nil {
			return fmt.Errorf("dispatching %s: binding %d: %w", prog.name, slot, err)
		}
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(slot), buf.id)
	}
	gl.DispatchCompute(grid.X, grid.Y, grid.Z)
	return nil
}

// MemoryBarrier implements gpu.Device.
func (d *Device) MemoryBarrier() {
	gl.MemoryBarrier(barrierBits)
}

// InsertFence implements gpu.Device.
func (d *Device) InsertFence() (gpu.Fence, error) {
	if d.closed {
		return nil, gpu.ErrDeviceClosed
	}
	s := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	if s == 0 {
		return nil, fmt.Errorf("glFenceSync: gl error 0x%x", gl.GetError())
	}
	return &fence{sync: s}, nil
}

// Close deletes every buffer and program still alive.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	for _, b := range d.buffers {
		b.Release()
	}
	for _, p := range d.programs {
		p.Release()
	}
	d.closed = true
	return nil
}

func (d *Device) own(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil || buf.dev != d {
		return nil, gpu.ErrUnknownBuffer
	}
	if buf.id == 0 {
		return nil, fmt.Errorf("%s: %w", buf.label, gpu.ErrBufferReleased)
	}
	return buf, nil
}

type buffer struct {
	dev   *Device
	id    uint32
	label string
	n     int
}

func (b *buffer) ID() uint32    { return b.id }
func (b *buffer) Len() int      { return b.n }
func (b *buffer) Label() string { return b.label }

func (b *buffer) Release() {
	if b.id == 0 {
		return
	}
	delete(b.dev.buffers, b.id)
	gl.DeleteBuffers(1, &b.id)
	b.id = 0
}

type fence struct {
	sync     uintptr
	released bool
}

func (f *fence) Wait(timeout time.Duration) gpu.WaitStatus {
	if f.released {
		return gpu.Failed
	}
	if timeout < 0 {
		timeout = 0
	}
	return waitStatus(gl.ClientWaitSync(f.sync, gl.SYNC_FLUSH_COMMANDS_BIT, uint64(timeout.Nanoseconds())))
}

func (f *fence) Release() {
	if f.released {
		return
	}
	gl.DeleteSync(f.sync)
	f.released = true
}

// waitStatus maps a glClientWaitSync result.
func waitStatus(code uint32) gpu.WaitStatus {
	switch code {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return gpu.Signaled
	case gl.TIMEOUT_EXPIRED:
		return gpu.TimedOut
	default:
		return gpu.Failed
	}
}
