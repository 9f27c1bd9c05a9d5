package soft

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pthm-cable/swarm/gpu"
)

// doubleKernel writes 2*in to out for every invocation below num_particles.
func doubleKernel(start, end int, args *gpu.KernelArgs) {
	n := int(args.Uniforms.Int("num_particles"))
	if end > n {
		end = n
	}
	in, out := args.Buffers[0], args.Buffers[1]
	for i := start; i < end; i++ {
		out[i] = in[i] * 2
	}
}

func newTestDevice(t *testing.T, workers int) *Device {
	t.Helper()
	d := New(Options{Workers: workers})
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDispatchRunsEveryInvocation(t *testing.T) {
	for _, workers := range []int{1, 4} {
		d := newTestDevice(t, workers)

		const n = 5000
		in, err := d.NewBuffer("in", n)
		if err != nil {
			t.Fatal(err)
		}
		out, err := d.NewBuffer("out", n)
		if err != nil {
			t.Fatal(err)
		}

		src := make([]float32, n)
		for i := range src {
			src[i] = float32(i)
		}
		if err := d.Write(in, src); err != nil {
			t.Fatal(err)
		}

		prog, err := d.CompileProgram(gpu.ProgramSource{Name: "double", Host: doubleKernel, LocalSize: 4})
		if err != nil {
			t.Fatal(err)
		}
		grid, _ := gpu.FoldGrid(n, 4)
		err = d.Dispatch(prog, grid, gpu.Bindings{
			Buffers:  []gpu.Buffer{in, out},
			Uniforms: gpu.Uniforms{gpu.Int("num_particles", n)},
		})
		if err != nil {
			t.Fatal(err)
		}
		d.MemoryBarrier()

		f, err := d.InsertFence()
		if err != nil {
			t.Fatal(err)
		}
		if st := gpu.WaitAndRelease(f, time.Second); st != gpu.Signaled {
			t.Fatalf("workers=%d: fence %v", workers, st)
		}

		got, err := d.Map(out)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range got {
			if v != float32(2*i) {
				t.Fatalf("workers=%d: out[%d] = %v, want %v", workers, i, v, 2*i)
			}
		}
	}
}

func TestWriteIsStagedAtSubmission(t *testing.T) {
	d := newTestDevice(t, 1)
	b, _ := d.NewBuffer("b", 3)

	src := []float32{1, 2, 3}
	if err := d.Write(b, src); err != nil {
		t.Fatal(err)
	}
	src[0] = 99

	f, _ := d.InsertFence()
	gpu.WaitAndRelease(f, time.Second)

	got, _ := d.Map(b)
	if got[0] != 1 {
		t.Errorf("buffer saw caller mutation after Write: %v", got)
	}
}

func TestWriteSizeMismatch(t *testing.T) {
	d := newTestDevice(t, 1)
	b, _ := d.NewBuffer("b", 3)
	if err := d.Write(b, []float32{1}); !errors.Is(err, gpu.ErrSizeMismatch) {
		t.Errorf("Write = %v, want ErrSizeMismatch", err)
	}
}

func TestHoldBlocksFences(t *testing.T) {
	d := newTestDevice(t, 1)

	release, err := d.Hold()
	if err != nil {
		t.Fatal(err)
	}
	f, err := d.InsertFence()
	if err != nil {
		t.Fatal(err)
	}

	if st := f.Wait(10 * time.Millisecond); st != gpu.TimedOut {
		t.Fatalf("Wait during hold = %v, want timed_out", st)
	}
	if st := f.Wait(0); st != gpu.TimedOut {
		t.Fatalf("poll during hold = %v, want timed_out", st)
	}

	release()
	release()
	if st := f.Wait(time.Second); st != gpu.Signaled {
		t.Fatalf("Wait after release = %v, want signaled", st)
	}
	f.Release()
}

func TestFenceOrderFollowsQueue(t *testing.T) {
	d := newTestDevice(t, 2)

	var ran atomic.Int32
	slow := func(start, end int, args *gpu.KernelArgs) {
		time.Sleep(5 * time.Millisecond)
		ran.Add(1)
	}
	prog, _ := d.CompileProgram(gpu.ProgramSource{Name: "slow", Host: slow, LocalSize: 1})

	if err := d.Dispatch(prog, gpu.Grid{X: 1, Y: 1, Z: 1}, gpu.Bindings{}); err != nil {
		t.Fatal(err)
	}
	f, _ := d.InsertFence()
	if st := gpu.WaitAndRelease(f, time.Second); st != gpu.Signaled {
		t.Fatalf("fence %v", st)
	}
	if ran.Load() != 1 {
		t.Error("fence signalled before the preceding dispatch finished")
	}
}

func TestReleasedFenceFails(t *testing.T) {
	d := newTestDevice(t, 1)
	f, _ := d.InsertFence()
	f.Release()
	if st := f.Wait(time.Millisecond); st != gpu.Failed {
		t.Errorf("Wait on released fence = %v, want failed", st)
	}
}

func TestMemoryLimit(t *testing.T) {
	d := New(Options{Workers: 1, MemoryLimit: 64})
	defer d.Close()

	a, err := d.NewBuffer("a", 12)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NewBuffer("b", 8); !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("NewBuffer over limit = %v, want ErrOutOfMemory", err)
	}

	a.Release()
	if d.Allocated() != 0 {
		t.Errorf("Allocated after release = %d, want 0", d.Allocated())
	}
	if _, err := d.NewBuffer("b", 8); err != nil {
		t.Errorf("NewBuffer after release: %v", err)
	}
}

func TestReleasedBufferRejected(t *testing.T) {
	d := newTestDevice(t, 1)
	b, _ := d.NewBuffer("b", 4)
	b.Release()
	b.Release()

	if err := d.Write(b, make([]float32, 4)); !errors.Is(err, gpu.ErrBufferReleased) {
		t.Errorf("Write to released buffer = %v, want ErrBufferReleased", err)
	}
	if _, err := d.Map(b); !errors.Is(err, gpu.ErrBufferReleased) {
		t.Errorf("Map released buffer = %v, want ErrBufferReleased", err)
	}
}

func TestForeignHandlesRejected(t *testing.T) {
	a := newTestDevice(t, 1)
	b := newTestDevice(t, 1)

	buf, _ := a.NewBuffer("a", 1)
	if _, err := b.Map(buf); !errors.Is(err, gpu.ErrUnknownBuffer) {
		t.Errorf("Map foreign buffer = %v, want ErrUnknownBuffer", err)
	}

	prog, _ := a.CompileProgram(gpu.ProgramSource{Name: "p", Host: doubleKernel})
	if err := b.Dispatch(prog, gpu.Grid{X: 1, Y: 1, Z: 1}, gpu.Bindings{}); !errors.Is(err, gpu.ErrUnknownProgram) {
		t.Errorf("Dispatch foreign program = %v, want ErrUnknownProgram", err)
	}
}

func TestCompileWithoutKernel(t *testing.T) {
	d := newTestDevice(t, 1)
	_, err := d.CompileProgram(gpu.ProgramSource{Name: "glsl-only", GLSL: "void main() {}"})
	if !errors.Is(err, gpu.ErrShaderBuild) || !errors.Is(err, gpu.ErrNoKernel) {
		t.Errorf("CompileProgram = %v, want ErrShaderBuild wrapping ErrNoKernel", err)
	}
}

func TestClosedDevice(t *testing.T) {
	d := New(Options{Workers: 2})
	f, _ := d.InsertFence()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}

	// Fences queued before Close signal while draining.
	if st := gpu.WaitAndRelease(f, time.Second); st != gpu.Signaled {
		t.Errorf("queued fence after Close = %v, want signaled", st)
	}
	if _, err := d.InsertFence(); !errors.Is(err, gpu.ErrDeviceClosed) {
		t.Errorf("InsertFence after Close = %v, want ErrDeviceClosed", err)
	}
	if _, err := d.NewBuffer("x", 1); !errors.Is(err, gpu.ErrDeviceClosed) {
		t.Errorf("NewBuffer after Close = %v, want ErrDeviceClosed", err)
	}
}

func BenchmarkDispatch(b *testing.B) {
	d := New(Options{})
	defer d.Close()

	const n = 1 << 20
	in, _ := d.NewBuffer("in", n)
	out, _ := d.NewBuffer("out", n)
	prog, _ := d.CompileProgram(gpu.ProgramSource{Name: "double", Host: doubleKernel, LocalSize: 32})
	grid, _ := gpu.FoldGrid(n, 32)
	bind := gpu.Bindings{
		Buffers:  []gpu.Buffer{in, out},
		Uniforms: gpu.Uniforms{gpu.Int("num_particles", n)},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Dispatch(prog, grid, bind)
		f, _ := d.InsertFence()
		gpu.WaitAndRelease(f, time.Minute)
	}
}
