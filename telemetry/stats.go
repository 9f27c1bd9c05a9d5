package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MotionStats summarizes the particle population over a window.
type MotionStats struct {
	WindowStartTick uint64  `csv:"-"`
	WindowEndTick   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Particles       int     `csv:"particles"`

	// Ticks in the window, and how many were skipped on a fence.
	Ticks        int `csv:"ticks"`
	SkippedTicks int `csv:"skipped_ticks"`
	// Frames drawn and dropped on an unready render fence.
	Frames        int `csv:"frames"`
	DroppedFrames int `csv:"dropped_frames"`

	// Speed distribution sampled at window end.
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`
	SpeedMax  float64 `csv:"speed_max"`

	// Center of mass and RMS distance from it.
	CenterX float64 `csv:"center_x"`
	CenterY float64 `csv:"center_y"`
	Spread  float64 `csv:"spread"`
}

// SpeedStats returns the mean, population standard deviation, 10th, 50th and
// 90th percentile, and maximum of speeds. scratch is reused when large
// enough.
func SpeedStats(speeds []float32, scratch []float64) (mean, std, p10, p50, p90, maxSpeed float64, buf []float64) {
	buf = scratch[:0]
	for _, s := range speeds {
		buf = append(buf, float64(s))
	}
	if len(buf) == 0 {
		return 0, 0, 0, 0, 0, 0, buf
	}

	mean, std = stat.PopMeanStdDev(buf, nil)
	sort.Float64s(buf)
	p10 = stat.Quantile(0.10, stat.LinInterp, buf, nil)
	p50 = stat.Quantile(0.50, stat.LinInterp, buf, nil)
	p90 = stat.Quantile(0.90, stat.LinInterp, buf, nil)
	maxSpeed = floats.Max(buf)
	return mean, std, p10, p50, p90, maxSpeed, buf
}

// Spread returns the center of mass of x,y pairs and the RMS distance of the
// points from it.
func Spread(positions []float32) (cx, cy, rms float64) {
	n := len(positions) / 2
	if n == 0 {
		return 0, 0, 0
	}
	for i := 0; i < n; i++ {
		cx += float64(positions[2*i])
		cy += float64(positions[2*i+1])
	}
	cx /= float64(n)
	cy /= float64(n)

	var sq float64
	for i := 0; i < n; i++ {
		dx := float64(positions[2*i]) - cx
		dy := float64(positions[2*i+1]) - cy
		sq += dx*dx + dy*dy
	}
	return cx, cy, math.Sqrt(sq / float64(n))
}

// LogValue implements slog.LogValuer.
func (s MotionStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.Particles),
		slog.Int("ticks", s.Ticks),
		slog.Int("skipped_ticks", s.SkippedTicks),
		slog.Int("frames", s.Frames),
		slog.Int("dropped_frames", s.DroppedFrames),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("center_x", s.CenterX),
		slog.Float64("center_y", s.CenterY),
		slog.Float64("spread", s.Spread),
	)
}

// LogStats logs the window at info level.
func (s MotionStats) LogStats() {
	slog.Info("motion",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"ticks", s.Ticks,
		"skipped_ticks", s.SkippedTicks,
		"dropped_frames", s.DroppedFrames,
		"speed_mean", s.SpeedMean,
		"speed_p50", s.SpeedP50,
		"speed_p90", s.SpeedP90,
		"spread", s.Spread,
	)
}
