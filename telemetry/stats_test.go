package telemetry

import (
	"math"
	"testing"
)

func TestSpeedStats(t *testing.T) {
	speeds := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	mean, std, p10, p50, p90, maxSpeed, _ := SpeedStats(speeds, nil)

	if math.Abs(mean-0.55) > 1e-6 {
		t.Errorf("mean = %v, want 0.55", mean)
	}
	// Population std of 0.1..1.0 is sqrt(0.0825).
	if math.Abs(std-math.Sqrt(0.0825)) > 1e-6 {
		t.Errorf("std = %v, want %v", std, math.Sqrt(0.0825))
	}
	if !(p10 < p50 && p50 < p90) {
		t.Errorf("quantiles not ordered: %v %v %v", p10, p50, p90)
	}
	if math.Abs(p50-0.55) > 0.06 {
		t.Errorf("p50 = %v, want ~0.55", p50)
	}
	if math.Abs(maxSpeed-1.0) > 1e-6 {
		t.Errorf("max = %v, want 1", maxSpeed)
	}
}

func TestSpeedStatsEmpty(t *testing.T) {
	mean, std, p10, p50, p90, maxSpeed, _ := SpeedStats(nil, nil)
	if mean != 0 || std != 0 || p10 != 0 || p50 != 0 || p90 != 0 || maxSpeed != 0 {
		t.Error("empty input should return all zeros")
	}
}

func TestSpeedStatsReusesScratch(t *testing.T) {
	scratch := make([]float64, 0, 16)
	_, _, _, _, _, _, buf := SpeedStats([]float32{3, 1, 2}, scratch)
	if &buf[:1][0] != &scratch[:1][0] {
		t.Error("scratch was not reused")
	}
}

func TestSpread(t *testing.T) {
	tests := []struct {
		name           string
		positions      []float32
		cx, cy, spread float64
	}{
		{"empty", nil, 0, 0, 0},
		{"single", []float32{2, 3}, 2, 3, 0},
		{"square", []float32{-1, -1, 1, -1, 1, 1, -1, 1}, 0, 0, math.Sqrt2},
		{"offset pair", []float32{4, 0, 6, 0}, 5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx, cy, rms := Spread(tt.positions)
			if math.Abs(cx-tt.cx) > 1e-9 || math.Abs(cy-tt.cy) > 1e-9 || math.Abs(rms-tt.spread) > 1e-9 {
				t.Errorf("Spread = (%v, %v, %v), want (%v, %v, %v)", cx, cy, rms, tt.cx, tt.cy, tt.spread)
			}
		})
	}
}

func TestCollectorWindows(t *testing.T) {
	c := NewCollector(1, 0.25)
	if c.WindowDurationTicks() != 4 {
		t.Fatalf("window = %d ticks, want 4", c.WindowDurationTicks())
	}

	for tick := uint64(1); tick <= 4; tick++ {
		c.RecordTick(tick == 2)
		c.RecordFrame(tick == 3)
		if tick < 4 && c.ShouldFlush(tick) {
			t.Fatalf("flush due at tick %d", tick)
		}
	}
	if !c.ShouldFlush(4) {
		t.Fatal("flush not due after a full window")
	}

	s := c.Flush(4, 2, []float32{0, 0, 2, 0}, []float32{1, 3})
	if s.Ticks != 4 || s.SkippedTicks != 1 || s.Frames != 4 || s.DroppedFrames != 1 {
		t.Errorf("counts %+v", s)
	}
	if s.SimTimeSec != 1 || s.CenterX != 1 || s.SpeedMean != 2 || s.SpeedMax != 3 {
		t.Errorf("stats %+v", s)
	}

	next := c.Flush(8, 2, nil, nil)
	if next.WindowStartTick != 4 || next.Ticks != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
}
