// Kernel check tool - builds the force and point programs on a hidden GL
// window, then runs a few ticks to confirm fences signal.
//
// Usage: go run -tags opengl43 ./cmd/kernelcheck -local-size 32 -ticks 60
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/gpu/glcompute"
	"github.com/pthm-cable/swarm/particles"
	"github.com/pthm-cable/swarm/renderer"
	"github.com/pthm-cable/swarm/sim"
)

func main() {
	localSize := flag.Int("local-size", sim.DefaultLocalSize, "Work group edge")
	count := flag.Int("particles", 100000, "Particles to step")
	ticks := flag.Int("ticks", 60, "Ticks to run")
	sets := flag.Int("sets", 3, "Buffer sets (2 or 3)")
	timeout := flag.Duration("fence-timeout", 50*time.Millisecond, "Per-wait fence timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Initialize raylib with hidden window
	rl.SetConfigFlags(rl.FlagWindowHidden)
	rl.InitWindow(64, 64, "Kernel Check")
	defer rl.CloseWindow()

	dev, err := glcompute.New(logger)
	if err != nil {
		fail("GL device: %v", err)
	}
	defer dev.Close()
	fmt.Printf("Device: %s\n", dev.Name())

	prog, err := dev.CompileProgram(sim.ForceProgram(*localSize))
	if err != nil {
		if errors.Is(err, gpu.ErrShaderBuild) {
			fail("force program does not build:\n%v", err)
		}
		fail("force program: %v", err)
	}
	prog.Release()
	fmt.Printf("Force program: ok (local size %dx%d)\n", *localSize, *localSize)

	points, err := glcompute.NewPointRenderer(dev, renderer.NewPalette().Floats(), 20, 1)
	if err != nil {
		fail("point program: %v", err)
	}
	points.Unload()
	fmt.Println("Point program: ok")

	s := sim.NewParticleSimulation(dev, sim.Config{
		Count:        *count,
		Bounds:       particles.Bounds{Width: 20, Height: 20},
		Seed:         particles.DefaultSeed,
		Sets:         *sets,
		BulkSeed:     true,
		Params:       sim.DefaultParams(),
		FenceTimeout: *timeout,
		LocalSize:    *localSize,
		Logger:       logger,
	})
	if err := s.Init(); err != nil {
		fail("init: %v", err)
	}
	defer s.Close()

	grid, batch := s.Stepper().Grid()
	fmt.Printf("Grid: %dx%dx%d groups, batch %d\n", grid.X, grid.Y, grid.Z, batch)

	start := time.Now()
	var skipped int
	for i := 0; i < *ticks; i++ {
		res, err := s.Update(0.016)
		if err != nil {
			fail("tick %d: %v", i, err)
		}
		if res == sim.TickSkipped {
			skipped++
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("Ticks: %d in %s (%d skipped, %d rotations)\n",
		*ticks, elapsed.Round(time.Millisecond), skipped, s.Ring().Rotations())
	if skipped == *ticks {
		fail("no tick advanced: fences never signalled within %s", *timeout)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
