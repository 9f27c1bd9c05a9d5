// Package soft implements gpu.Device in process.
//
// Commands are executed by a single queue goroutine in submission order, the
// way a GPU command stream is; dispatches fan out over a persistent worker
// pool. Fences are signalled by the queue once every earlier command has
// finished, so the control thread observes device progress only through them.
// Buffers live in host memory and are exposed through gpu.HostMapper.
package soft

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/swarm/gpu"
)

// queueDepth bounds the number of commands in flight before submission
// applies back-pressure. A tick enqueues a handful of commands.
const queueDepth = 1024

// Options configures a Device.
type Options struct {
	// Workers is the number of execution units (0 = GOMAXPROCS).
	Workers int
	// MemoryLimit caps total buffer bytes (0 = unlimited). Allocations beyond
	// it fail with gpu.ErrOutOfMemory.
	MemoryLimit int64
	Logger      *slog.Logger
}

// Device is an asynchronous in-process compute device.
type Device struct {
	opts   Options
	logger *slog.Logger
	pool   *pool
	cmds   chan command
	done   chan struct{}

	mu        sync.Mutex
	closed    bool
	nextID    uint32
	allocated int64

	dispatches atomic.Int64
	barriers   atomic.Int64
}

// New starts a device.
func New(opts Options) *Device {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Device{
		opts:   opts,
		logger: logger,
		pool:   newPool(workers),
		cmds:   make(chan command, queueDepth),
		done:   make(chan struct{}),
	}
	d.pool.start()
	go d.queue()

	logger.Debug("soft device started", "workers", workers, "memory_limit", opts.MemoryLimit)
	return d
}

// Name implements gpu.Device.
func (d *Device) Name() string { return "soft" }

// NewBuffer implements gpu.Device.
func (d *Device) NewBuffer(label string, n int) (gpu.Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("allocating %s: negative length %d", label, n)
	}
	size := int64(n) * 4

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpu.ErrDeviceClosed
	}
	if d.opts.MemoryLimit > 0 && d.allocated+size > d.opts.MemoryLimit {
		return nil, fmt.Errorf("allocating %s (%d bytes, %d in use): %w", label, size, d.allocated, gpu.ErrOutOfMemory)
	}
	d.allocated += size
	d.nextID++

	return &buffer{
		dev:   d,
		id:    d.nextID,
		label: label,
		data:  make([]float32, n),
	}, nil
}

// Write implements gpu.Device.
func (d *Device) Write(b gpu.Buffer, data []float32) error {
	buf, err := d.own(b)
	if err != nil {
		return err
	}
	if len(data) != len(buf.data) {
		return fmt.Errorf("writing %s: %d values into %d: %w", buf.label, len(data), len(buf.data), gpu.ErrSizeMismatch)
	}
	staged := make([]float32, len(data))
	copy(staged, data)
	return d.submit(writeCmd{dst: buf, src: staged})
}

// CompileProgram implements gpu.Device. Only the host kernel is used.
func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	if src.Host == nil {
		return nil, fmt.Errorf("%w: %s: %w", gpu.ErrShaderBuild, src.Name, gpu.ErrNoKernel)
	}
	local := src.LocalSize
	if local < 1 {
		local = 1
	}
	return &program{dev: d, name: src.Name, kernel: src.Host, localSize: local}, nil
}

// Dispatch implements gpu.Device.
func (d *Device) Dispatch(p gpu.Program, grid gpu.Grid, b gpu.Bindings) error {
	prog, ok := p.(*program)
	if !ok || prog.dev != d {
		return gpu.ErrUnknownProgram
	}
	if prog.released.Load() {
		return fmt.Errorf("dispatching %s: program released", prog.name)
	}

	slices := make([][]float32, len(b.Buffers))
	for i, bb := range b.Buffers {
		buf, err := d.own(bb)
		if err != nil {
			return fmt.Errorf("dispatching %s: binding %d: %w", prog.name, i, err)
		}
		slices[i] = buf.data
	}

	batch := prog.localSize * prog.localSize
	job := &dispatchJob{
		kernel: prog.kernel,
		args: gpu.KernelArgs{
			Buffers:  slices,
			Uniforms: b.Uniforms.Clone(),
			Aux:      b.Aux,
		},
		batch: batch,
		count: grid.Count() * batch,
	}
	return d.submit(dispatchCmd{job: job, groups: grid.Count()})
}

// MemoryBarrier implements gpu.Device. The queue completes each dispatch
// before starting the next command, so every write is already visible to
// later commands; the barrier is recorded for accounting only.
func (d *Device) MemoryBarrier() {
	d.barriers.Add(1)
}

// InsertFence implements gpu.Device.
func (d *Device) InsertFence() (gpu.Fence, error) {
	f := &fence{done: make(chan struct{})}
	if err := d.submit(fenceCmd{f: f}); err != nil {
		return nil, err
	}
	return f, nil
}

// Map implements gpu.HostMapper.
func (d *Device) Map(b gpu.Buffer) ([]float32, error) {
	buf, err := d.own(b)
	if err != nil {
		return nil, err
	}
	return buf.data, nil
}

// Hold stalls the queue after every command submitted so far has run.
// Fences inserted after Hold do not signal until the returned release
// function is called. Close blocks while a hold is active.
func (d *Device) Hold() (release func(), err error) {
	gate := make(chan struct{})
	if err := d.submit(holdCmd{gate: gate}); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }, nil
}

// Stats reports the number of executed dispatches and recorded barriers.
func (d *Device) Stats() (dispatches, barriers int64) {
	return d.dispatches.Load(), d.barriers.Load()
}

// Allocated reports the bytes held by live buffers.
func (d *Device) Allocated() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Close drains the queue and stops the workers. Outstanding fences signal
// as the queue drains.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.cmds)
	d.mu.Unlock()

	<-d.done
	d.pool.stop()
	d.logger.Debug("soft device closed", "dispatches", d.dispatches.Load())
	return nil
}

func (d *Device) submit(c command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpu.ErrDeviceClosed
	}
	d.cmds <- c
	return nil
}

func (d *Device) own(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil || buf.dev != d {
		return nil, gpu.ErrUnknownBuffer
	}
	if buf.released.Load() {
		return nil, fmt.Errorf("%s: %w", buf.label, gpu.ErrBufferReleased)
	}
	return buf, nil
}

func (d *Device) free(size int64) {
	d.mu.Lock()
	d.allocated -= size
	d.mu.Unlock()
}

// queue executes commands in order until the command channel is closed.
func (d *Device) queue() {
	defer close(d.done)
	for c := range d.cmds {
		switch c := c.(type) {
		case writeCmd:
			copy(c.dst.data, c.src)
		case dispatchCmd:
			d.pool.run(c.job, c.groups)
			d.dispatches.Add(1)
		case fenceCmd:
			c.f.signal()
		case holdCmd:
			<-c.gate
		}
	}
}

type command interface{ isCommand() }

type writeCmd struct {
	dst *buffer
	src []float32
}

type dispatchCmd struct {
	job    *dispatchJob
	groups int
}

type fenceCmd struct{ f *fence }

type holdCmd struct{ gate chan struct{} }

func (writeCmd) isCommand()    {}
func (dispatchCmd) isCommand() {}
func (fenceCmd) isCommand()    {}
func (holdCmd) isCommand()     {}

type buffer struct {
	dev      *Device
	id       uint32
	label    string
	data     []float32
	released atomic.Bool
}

func (b *buffer) ID() uint32    { return b.id }
func (b *buffer) Len() int      { return len(b.data) }
func (b *buffer) Label() string { return b.label }

func (b *buffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.dev.free(int64(len(b.data)) * 4)
}

type program struct {
	dev       *Device
	name      string
	kernel    gpu.HostKernel
	localSize int
	released  atomic.Bool
}

func (p *program) Name() string { return p.name }
func (p *program) Release()     { p.released.Store(true) }

type fence struct {
	done     chan struct{}
	released atomic.Bool
}

func (f *fence) signal() { close(f.done) }

func (f *fence) Wait(timeout time.Duration) gpu.WaitStatus {
	if f.released.Load() {
		return gpu.Failed
	}
	if timeout <= 0 {
		select {
		case <-f.done:
			return gpu.Signaled
		default:
			return gpu.TimedOut
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return gpu.Signaled
	case <-timer.C:
		return gpu.TimedOut
	}
}

func (f *fence) Release() { f.released.Store(true) }
