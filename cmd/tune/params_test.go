package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/telemetry"
)

func TestUnitRoundtrip(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	space := DefaultSpace()
	raw := space.Read(cfg)

	back := space.FromUnit(space.ToUnit(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-9 {
			t.Errorf("%s: %v -> %v", space[i].Path, raw[i], back[i])
		}
	}
}

func TestFromUnitClamps(t *testing.T) {
	space := DefaultSpace()
	tests := []struct {
		name string
		u    float64
		want func(Param) float64
	}{
		{"below", -3, func(p Param) float64 { return p.Min }},
		{"above", 7, func(p Param) float64 { return p.Max }},
		{"middle", 0.5, func(p Param) float64 { return (p.Min + p.Max) / 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := make([]float64, len(space))
			for i := range u {
				u[i] = tt.u
			}
			for i, got := range space.FromUnit(u) {
				if want := tt.want(space[i]); math.Abs(got-want) > 1e-12 {
					t.Errorf("%s = %v, want %v", space[i].Path, got, want)
				}
			}
		})
	}
}

func TestDefaultsInsideSpace(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	space := DefaultSpace()
	for i, v := range space.Read(cfg) {
		if v < space[i].Min || v > space[i].Max {
			t.Errorf("%s default %v outside [%v, %v]", space[i].Path, v, space[i].Min, space[i].Max)
		}
	}
}

func TestWrite(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	DefaultSpace().Write(cfg, []float64{200, 2, 0.5, 0.05})

	if cfg.Simulation.ForceScale != 200 {
		t.Errorf("force_scale = %v", cfg.Simulation.ForceScale)
	}
	if cfg.Simulation.Damping != 1 {
		t.Errorf("damping = %v, want clamped to 1", cfg.Simulation.Damping)
	}
	if cfg.Simulation.AttractionStrength != 0.5 || cfg.Simulation.TimeScale != 0.05 {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
}

func TestComputeFitness(t *testing.T) {
	fe := &FitnessEvaluator{target: Target{SpeedMean: 2, Spread: 4}}

	on := make([]telemetry.MotionStats, warmupWindows+3)
	for i := range on {
		on[i] = telemetry.MotionStats{SpeedMean: 2, Spread: 4}
	}
	// Warmup windows are ignored.
	on[0].SpeedMean = 50

	f, speed, spread := fe.computeFitness(on)
	if f != 0 || speed != 2 || spread != 4 {
		t.Errorf("on target: fitness %v speed %v spread %v", f, speed, spread)
	}

	off := make([]telemetry.MotionStats, len(on))
	for i := range off {
		off[i] = telemetry.MotionStats{SpeedMean: 4, Spread: 4}
	}
	if f, _, _ := fe.computeFitness(off); math.Abs(f-1) > 1e-12 {
		t.Errorf("speed doubled: fitness %v, want 1", f)
	}

	if f, _, _ := fe.computeFitness(on[:warmupWindows]); f != failedFitness {
		t.Errorf("warmup only: fitness %v, want %v", f, failedFitness)
	}
}
