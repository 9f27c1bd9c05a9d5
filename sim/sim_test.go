package sim

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/gpu/soft"
	"github.com/pthm-cable/swarm/particles"
	"github.com/pthm-cable/swarm/ring"
	"github.com/pthm-cable/swarm/telemetry"
)

func mag(x, y float32) float64 {
	return math.Hypot(float64(x), float64(y))
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-6*math.Max(1, math.Abs(float64(b)))
}

func TestForceIsClamped(t *testing.T) {
	tests := []struct {
		name     string
		x, y     float32
		p        Params
		wantNorm float64
	}{
		{
			name:     "near singularity",
			x:        1e-3,
			p:        Params{ForceScale: 150, MinDistance: 1e-4, MaxForce: 200, AttractionStrength: 1},
			wantNorm: 200,
		},
		{
			name:     "inside mouse radius",
			x:        0.5,
			p:        Params{ForceScale: 150, MinDistance: 1e-4, MaxForce: 50, AttractionStrength: 1, MouseForceRadius: 5, MouseForceStrength: 10},
			wantNorm: 50,
		},
		{
			name:     "far field dominates",
			x:        100,
			y:        100,
			p:        Params{ForceScale: 1, MinDistance: 1e-4, MaxForce: 3, AttractionStrength: 1},
			wantNorm: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			farX, farY := float32(0), float32(0)
			if tt.name == "far field dominates" {
				farX = 1e6
			}
			fx, fy := Force(tt.x, tt.y, &tt.p, farX, farY)
			if n := mag(fx, fy); math.Abs(n-tt.wantNorm) > 1e-3*tt.wantNorm {
				t.Errorf("|F| = %v, want %v", n, tt.wantNorm)
			}
		})
	}
}

func TestForceFollowsInverseSquare(t *testing.T) {
	p := Params{ForceScale: 2, MinDistance: 1e-4, MaxForce: 1e9, AttractionStrength: 3}
	for _, d := range []float32{1, 2, 4, 10} {
		fx, fy := Force(d, 0, &p, 0, 0)
		want := float64(p.ForceScale*p.AttractionStrength) / float64(d*d)
		if math.Abs(float64(-fx)-want) > 1e-5*want || fy != 0 {
			t.Errorf("d=%v: F = (%v, %v), want (%v, 0)", d, fx, fy, -want)
		}
	}
}

func TestForceMinDistanceSoftening(t *testing.T) {
	p := Params{ForceScale: 1, MinDistance: 0.5, MaxForce: 1e9, AttractionStrength: 1}
	a, _ := Force(0.1, 0, &p, 0, 0)
	b, _ := Force(0.4, 0, &p, 0, 0)
	if !near(a, -4) || !near(b, -4) {
		t.Errorf("inside minDistance F = %v and %v, want -4 for both", a, b)
	}
}

func TestForceAtGravityPoint(t *testing.T) {
	p := DefaultParams()
	p.GravityX, p.GravityY = 3, -2
	fx, fy := Force(3, -2, &p, 0, 0)
	if fx != 0 || fy != 0 {
		t.Errorf("F at the gravity point = (%v, %v), want 0", fx, fy)
	}
}

func TestVelocityIsClamped(t *testing.T) {
	p := DefaultParams()
	p.TerminalVelocity = 10
	p.TimeScale = 1
	_, _, vx, vy, speed := Integrate(0, 0, 9, 9, 1e4, 1e4, 1, &p)
	if n := mag(vx, vy); math.Abs(n-10) > 1e-4 {
		t.Errorf("|v| = %v, want 10", n)
	}
	if math.Abs(float64(speed)-10) > 1e-4 {
		t.Errorf("speed = %v, want 10", speed)
	}
}

func TestIntegrateStep(t *testing.T) {
	p := Params{Damping: 0.75, TerminalVelocity: 100, TimeScale: 2}
	x, y, vx, vy, speed := Integrate(1, 1, 4, 0, 0, 3, 0.5, &p)
	// dv = 2*((4,0)*-0.25 + (0,3)*0.5) = (-2, 3); step = 1
	// v = (2, 3); p = (1+2, 1+3)
	if vx != 2 || vy != 3 || x != 3 || y != 4 {
		t.Errorf("got p=(%v,%v) v=(%v,%v)", x, y, vx, vy)
	}
	if math.Abs(float64(speed)-math.Sqrt(13)) > 1e-6 {
		t.Errorf("speed = %v", speed)
	}
}

func TestTimeScaleScalesVelocityChange(t *testing.T) {
	tests := []struct {
		name      string
		timeScale float32
		wantVX    float32
		wantX     float32
	}{
		// Full step: dv = 1*(10*-0.1 + 50*0.01) = -0.5
		{"full", 1, 9.5, 1 + 9.5*0.01},
		{"half", 0.5, 9.75, 1 + 9.75*0.005},
		{"frozen", 0, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{Damping: 0.9, TerminalVelocity: 100, TimeScale: tt.timeScale}
			x, y, vx, vy, speed := Integrate(1, 1, 10, 0, 50, 0, 0.01, &p)
			if !near(vx, tt.wantVX) || vy != 0 {
				t.Errorf("v = (%v, %v), want (%v, 0)", vx, vy, tt.wantVX)
			}
			if !near(x, tt.wantX) || y != 1 {
				t.Errorf("p = (%v, %v), want (%v, 1)", x, y, tt.wantX)
			}
			if !near(speed, tt.wantVX) {
				t.Errorf("speed = %v, want %v", speed, tt.wantVX)
			}
		})
	}
}

func TestTimeScaleZeroFreezesParticles(t *testing.T) {
	p := DefaultParams()
	p.TimeScale = 0
	fx, fy := Force(3, -2, &p, 0, 0)
	x, y, vx, vy, _ := Integrate(3, -2, 10, -4, fx, fy, 0.016, &p)
	if x != 3 || y != -2 || vx != 10 || vy != -4 {
		t.Errorf("timeScale 0 moved the particle: p=(%v,%v) v=(%v,%v)", x, y, vx, vy)
	}
}

func TestForceProgramHeader(t *testing.T) {
	src := ForceProgram(16)
	if src.LocalSize != 16 || src.Host == nil {
		t.Fatalf("unexpected program %+v", src)
	}
	want := "#version 430 core\n#define LOCAL_SIZE 16\n"
	if len(src.GLSL) <= len(want) || src.GLSL[:len(want)] != want {
		t.Errorf("GLSL header = %q", src.GLSL[:min(len(src.GLSL), len(want))])
	}
	if ForceProgram(0).LocalSize != DefaultLocalSize {
		t.Error("zero local size not defaulted")
	}
}

type phaseRecorder struct {
	phases []string
}

func (r *phaseRecorder) StartPhase(p string) { r.phases = append(r.phases, p) }

type countingObserver struct {
	mu       sync.Mutex
	waits    map[gpu.WaitStatus]int
	advanced int
	skipped  int
	trees    int
}

func (o *countingObserver) ObserveFenceWait(_ ring.Role, st gpu.WaitStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.waits == nil {
		o.waits = make(map[gpu.WaitStatus]int)
	}
	o.waits[st]++
}

func (o *countingObserver) ObserveTick(res TickResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if res == TickAdvanced {
		o.advanced++
	} else {
		o.skipped++
	}
}

func (o *countingObserver) ObserveTree(int, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trees++
}

func newSimulation(t *testing.T, dev gpu.Device, cfg Config) *ParticleSimulation {
	t.Helper()
	s := NewParticleSimulation(dev, cfg)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTickSkippedWhenFenceNeverSignals(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 2})
	defer dev.Close()
	obs := &countingObserver{}
	s := newSimulation(t, dev, Config{
		Count:        256,
		Bounds:       particles.Bounds{Width: 10, Height: 10},
		Seed:         5,
		Sets:         3,
		Params:       DefaultParams(),
		FenceTimeout: time.Millisecond,
		Observer:     obs,
	})
	r := s.Ring()

	release, err := dev.Hold()
	if err != nil {
		t.Fatal(err)
	}
	f, err := dev.InsertFence()
	if err != nil {
		t.Fatal(err)
	}
	target := r.ComputeTarget()
	if err := r.Publish(target, f); err != nil {
		t.Fatal(err)
	}
	roles := r.Roles()

	for i := 0; i < 3; i++ {
		res, err := s.Update(0.016)
		if err != nil {
			t.Fatal(err)
		}
		if res != TickSkipped {
			t.Fatalf("tick %d: %v, want skipped", i, res)
		}
		if s.Stepper().State() != StateIdle {
			t.Fatalf("state %v after skip", s.Stepper().State())
		}
	}
	if r.Rotations() != 0 || r.ComputeTarget() != target {
		t.Fatal("skipped tick touched the ring")
	}
	for i, role := range r.Roles() {
		if role != roles[i] {
			t.Fatalf("set %d role %v, was %v", i, role, roles[i])
		}
	}
	if !r.Set(target).FencePending() {
		t.Fatal("timed-out fence was dropped")
	}

	release()
	s.Stepper().opts.FenceTimeout = time.Second
	res, err := s.Update(0.016)
	if err != nil || res != TickAdvanced {
		t.Fatalf("after release: %v, %v", res, err)
	}
	if r.Rotations() != 1 {
		t.Errorf("rotations = %d, want 1", r.Rotations())
	}
	if s.Stepper().Skipped() != 3 || s.Stepper().Ticks() != 1 {
		t.Errorf("skipped %d ticks %d", s.Stepper().Skipped(), s.Stepper().Ticks())
	}
	if obs.skipped != 3 || obs.advanced != 1 || obs.waits[gpu.TimedOut] != 3 {
		t.Errorf("observer saw %+v", obs)
	}
}

func TestFailedFenceIsReportedAndDropped(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 1})
	defer dev.Close()
	s := newSimulation(t, dev, Config{
		Count:        100,
		Bounds:       particles.Bounds{Width: 4, Height: 4},
		Sets:         2,
		Params:       DefaultParams(),
		FenceTimeout: time.Second,
	})
	r := s.Ring()

	f, err := dev.InsertFence()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(r.ComputeTarget(), f); err != nil {
		t.Fatal(err)
	}
	f.Release()

	res, err := s.Update(0.016)
	if !errors.Is(err, ErrFenceFailed) || res != TickSkipped {
		t.Fatalf("Update = %v, %v; want skipped, ErrFenceFailed", res, err)
	}
	if r.Rotations() != 0 {
		t.Fatal("failed fence rotated the ring")
	}
	if res, err := s.Update(0.016); err != nil || res != TickAdvanced {
		t.Fatalf("next Update = %v, %v", res, err)
	}
}

func TestNoDriftWithoutForce(t *testing.T) {
	for _, sets := range []int{2, 3} {
		dev := soft.New(soft.Options{Workers: 4})
		p := DefaultParams()
		p.ForceScale = 0
		p.Damping = 1
		p.TimeScale = 1
		s := newSimulation(t, dev, Config{
			Count:        1000,
			Bounds:       particles.Bounds{Width: 20, Height: 20},
			Seed:         77,
			Sets:         sets,
			Params:       p,
			FenceTimeout: time.Second,
		})

		for i := 0; i < 100; i++ {
			res, err := s.Update(0.016)
			if err != nil {
				t.Fatal(err)
			}
			if res != TickAdvanced {
				t.Fatalf("sets=%d tick %d skipped", sets, i)
			}
		}

		want, _, err := particles.Seed(1000, particles.Bounds{Width: 20, Height: 20}, 77)
		if err != nil {
			t.Fatal(err)
		}
		err = s.ReadBack(time.Second, func(pos, speeds []float32) {
			for i := range want {
				if pos[i] != want[i] {
					t.Fatalf("sets=%d: position %d drifted from %v to %v", sets, i, want[i], pos[i])
				}
			}
			for i, v := range speeds {
				if v != 0 {
					t.Fatalf("sets=%d: speed[%d] = %v", sets, i, v)
				}
			}
		})
		if err != nil {
			t.Fatal(err)
		}
		if d, b := dev.Stats(); d != 100 || b != 100 {
			t.Errorf("sets=%d: %d dispatches, %d barriers", sets, d, b)
		}
		s.Close()
		dev.Close()
	}
}

func TestTickMatchesHostFunctions(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 3})
	defer dev.Close()
	p := DefaultParams()
	p.GravityX, p.GravityY = 1.5, -0.5
	p.TimeScale = 1
	s := newSimulation(t, dev, Config{
		Count:        3001,
		Bounds:       particles.Bounds{Width: 10, Height: 6},
		Seed:         9,
		Sets:         3,
		Params:       p,
		FenceTimeout: time.Second,
		LocalSize:    8,
	})

	const dt = 0.016
	if _, err := s.Update(dt); err != nil {
		t.Fatal(err)
	}
	initial, _, _ := particles.Seed(3001, particles.Bounds{Width: 10, Height: 6}, 9)

	err := s.ReadBack(time.Second, func(pos, speeds []float32) {
		for i := 0; i < 3001; i++ {
			x, y := initial[2*i], initial[2*i+1]
			fx, fy := Force(x, y, &p, 0, 0)
			nx, ny, _, _, sp := Integrate(x, y, 0, 0, fx, fy, dt, &p)
			if !near(pos[2*i], nx) || !near(pos[2*i+1], ny) || !near(speeds[i], sp) {
				t.Fatalf("particle %d: got (%v,%v,%v), want (%v,%v,%v)",
					i, pos[2*i], pos[2*i+1], speeds[i], nx, ny, sp)
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestParticlesFallTowardGravityPoint(t *testing.T) {
	dev := soft.New(soft.Options{})
	defer dev.Close()
	s := newSimulation(t, dev, Config{
		Count:        500,
		Bounds:       particles.Bounds{Width: 20, Height: 20},
		Seed:         3,
		Params:       DefaultParams(),
		FenceTimeout: time.Second,
	})

	meanDist := func() float64 {
		var sum float64
		if err := s.ReadBack(time.Second, func(pos, _ []float32) {
			for i := 0; i < len(pos); i += 2 {
				sum += mag(pos[i], pos[i+1])
			}
		}); err != nil {
			t.Fatal(err)
		}
		return sum / 500
	}

	if _, err := s.Update(0.016); err != nil {
		t.Fatal(err)
	}
	before := meanDist()
	for i := 0; i < 30; i++ {
		if _, err := s.Update(0.016); err != nil {
			t.Fatal(err)
		}
	}
	if after := meanDist(); after >= before {
		t.Errorf("mean distance grew from %v to %v", before, after)
	}
}

func TestFarFieldBuildsIndex(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 2})
	defer dev.Close()
	p := DefaultParams()
	p.FarField = true
	obs := &countingObserver{}
	s := newSimulation(t, dev, Config{
		Count:        2000,
		Bounds:       particles.Bounds{Width: 10, Height: 10},
		Seed:         4,
		Params:       p,
		FenceTimeout: time.Second,
		Observer:     obs,
	})

	for i := 0; i < 5; i++ {
		if res, err := s.Update(0.016); err != nil || res != TickAdvanced {
			t.Fatalf("tick %d: %v, %v", i, res, err)
		}
	}
	tree := s.Stepper().Tree()
	if tree == nil {
		t.Fatal("far field did not build an index")
	}
	if tree.Count() != 2000 || tree.Dropped() != 0 {
		t.Errorf("index holds %d points, dropped %d", tree.Count(), tree.Dropped())
	}
	if obs.trees != 5 {
		t.Errorf("observed %d rebuilds, want 5", obs.trees)
	}
}

func TestFarFieldWaitsIndexTimeout(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 2})
	defer dev.Close()
	p := DefaultParams()
	p.FarField = true
	s := newSimulation(t, dev, Config{
		Count:        512,
		Bounds:       particles.Bounds{Width: 10, Height: 10},
		Seed:         6,
		Sets:         3,
		Params:       p,
		FenceTimeout: time.Second,
		IndexTimeout: 5 * time.Second,
	})

	release, err := dev.Hold()
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if res, err := s.Update(0.016); err != nil || res != TickAdvanced {
		t.Fatalf("first tick: %v, %v", res, err)
	}

	// The first dispatch is queued behind the hold, so the pending-read
	// fence outlives the compute-target timeout.
	s.Stepper().opts.FenceTimeout = time.Millisecond
	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()
	res, err := s.Update(0.016)
	if err != nil {
		t.Fatal(err)
	}
	if res != TickAdvanced {
		t.Fatalf("second tick %v, want the index wait to outlast the hold", res)
	}
	if s.Stepper().Tree() == nil {
		t.Fatal("no index after second tick")
	}
}

func TestIndexTimeoutNotBelowFenceTimeout(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 1})
	defer dev.Close()
	s := newSimulation(t, dev, Config{
		Count:        16,
		Bounds:       particles.Bounds{Width: 1, Height: 1},
		Params:       DefaultParams(),
		FenceTimeout: 30 * time.Millisecond,
		IndexTimeout: time.Millisecond,
	})
	if got := s.Stepper().opts.IndexTimeout; got != 30*time.Millisecond {
		t.Errorf("index timeout %v, want it raised to the fence timeout", got)
	}
}

func TestPhaseOrder(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 1})
	defer dev.Close()
	rec := &phaseRecorder{}
	s := newSimulation(t, dev, Config{
		Count:        10,
		Bounds:       particles.Bounds{Width: 1, Height: 1},
		Params:       DefaultParams(),
		FenceTimeout: time.Second,
		Phases:       rec,
	})
	if _, err := s.Update(0.016); err != nil {
		t.Fatal(err)
	}
	want := []string{
		telemetry.PhaseWait,
		telemetry.PhaseUpload,
		telemetry.PhaseDispatch,
		telemetry.PhaseBarrier,
		telemetry.PhaseRotate,
	}
	if len(rec.phases) != len(want) {
		t.Fatalf("phases %v, want %v", rec.phases, want)
	}
	for i := range want {
		if rec.phases[i] != want[i] {
			t.Fatalf("phases %v, want %v", rec.phases, want)
		}
	}
}

func TestInitReleasesOnFailure(t *testing.T) {
	// Room for two sets of 1000 particles but not three.
	dev := soft.New(soft.Options{Workers: 1, MemoryLimit: 2*1000*5*4 + 100})
	defer dev.Close()

	s := NewParticleSimulation(dev, Config{
		Count:  1000,
		Bounds: particles.Bounds{Width: 1, Height: 1},
		Sets:   3,
		Params: DefaultParams(),
	})
	if err := s.Init(); !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("Init = %v, want ErrOutOfMemory", err)
	}
	if dev.Allocated() != 0 {
		t.Errorf("%d bytes leaked", dev.Allocated())
	}
	if _, err := s.Update(0.016); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update after failed Init = %v", err)
	}
}

func TestSimulationAccessors(t *testing.T) {
	dev := soft.New(soft.Options{Workers: 1})
	defer dev.Close()
	s := newSimulation(t, dev, Config{
		Count:  10,
		Bounds: particles.Bounds{Width: 1, Height: 1},
		Params: DefaultParams(),
	})

	s.SetTimeScale(0.5)
	s.SetAttractionStrength(2)
	s.SetGravityPoint(1, 2)
	if s.TimeScale() != 0.5 || s.AttractionStrength() != 2 {
		t.Errorf("time scale %v, attraction %v", s.TimeScale(), s.AttractionStrength())
	}
	if x, y := s.Params().GravityPoint(); x != 1 || y != 2 {
		t.Errorf("gravity point (%v, %v)", x, y)
	}
	if s.ParticleCount() != 10 {
		t.Errorf("ParticleCount = %d", s.ParticleCount())
	}
	if s.Ring().Len() != 3 {
		t.Errorf("default ring size %d, want 3", s.Ring().Len())
	}
	if err := s.Render(mgl32.Ident4(), mgl32.Ident4()); !errors.Is(err, ErrNoRenderer) {
		t.Errorf("headless Render = %v", err)
	}
}

func TestExtent(t *testing.T) {
	r := extent([]float32{-1, 2, 3, -4, float32(math.NaN()), 0})
	if r.MinX != -1 || r.MinY != -4 || !r.Contains(3, 2) {
		t.Errorf("extent = %+v", r)
	}
	if r := extent([]float32{5, 5, 5, 5}); !r.Valid() || !r.Contains(5, 5) {
		t.Errorf("coincident extent = %+v", r)
	}
	if r := extent(nil); !r.Valid() {
		t.Errorf("empty extent = %+v", r)
	}
}

func TestParamStore(t *testing.T) {
	s := NewParamStore(DefaultParams())

	s.SetDamping(1.5)
	if s.Damping() != 1 {
		t.Errorf("damping %v, want clamp to 1", s.Damping())
	}
	s.SetDamping(-1)
	if s.Damping() != 0 {
		t.Errorf("damping %v, want clamp to 0", s.Damping())
	}
	s.SetMinDistance(0)
	if s.MinDistance() != DefaultParams().MinDistance {
		t.Errorf("non-positive min distance accepted: %v", s.MinDistance())
	}
	s.SetMaxForce(-5)
	if s.MaxForce() != 0 {
		t.Errorf("max force %v", s.MaxForce())
	}
	s.SetForceScale(3)
	s.SetTerminalVelocity(7)
	s.SetMouseForceRadius(2)
	s.SetMouseForceStrength(4)
	s.SetTheta(0.5)
	s.SetFarField(true)
	snap := s.Snapshot()
	if snap.ForceScale != 3 || snap.TerminalVelocity != 7 || snap.MouseForceRadius != 2 ||
		snap.MouseForceStrength != 4 || snap.Theta != 0.5 || !snap.FarField {
		t.Errorf("snapshot %+v", snap)
	}
}

func TestParamStoreConcurrentWriters(t *testing.T) {
	s := NewParamStore(DefaultParams())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.SetGravityPoint(float32(i), float32(i))
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	x, y := s.GravityPoint()
	if x != y {
		t.Errorf("torn gravity point (%v, %v)", x, y)
	}
}

func BenchmarkTick(b *testing.B) {
	dev := soft.New(soft.Options{})
	defer dev.Close()
	s := NewParticleSimulation(dev, Config{
		Count:        100_000,
		Bounds:       particles.Bounds{Width: 100, Height: 100},
		Params:       DefaultParams(),
		FenceTimeout: time.Second,
	})
	if err := s.Init(); err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Update(0.016)
	}
}
