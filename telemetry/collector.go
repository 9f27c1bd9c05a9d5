package telemetry

// Collector counts pipeline events within windows of ticks and produces
// MotionStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks uint64
	dt                  float32

	windowStartTick uint64

	ticks         int
	skippedTicks  int
	frames        int
	droppedFrames int

	scratch []float64
}

// NewCollector creates a collector whose windows last windowDurationSec of
// simulation time at dt seconds per tick.
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := uint64(windowDurationSec / float64(dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}
	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordTick records the outcome of one tick.
func (c *Collector) RecordTick(skipped bool) {
	c.ticks++
	if skipped {
		c.skippedTicks++
	}
}

// RecordFrame records the outcome of one draw.
func (c *Collector) RecordFrame(dropped bool) {
	c.frames++
	if dropped {
		c.droppedFrames++
	}
}

// ShouldFlush reports whether the window ending at currentTick is complete.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces the window's stats from a sample of the population and
// resets the counters. positions and speeds may be nil when the device
// buffers are not host visible.
func (c *Collector) Flush(currentTick uint64, particles int, positions, speeds []float32) MotionStats {
	s := MotionStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * float64(c.dt),
		Particles:       particles,
		Ticks:           c.ticks,
		SkippedTicks:    c.skippedTicks,
		Frames:          c.frames,
		DroppedFrames:   c.droppedFrames,
	}

	s.SpeedMean, s.SpeedStd, s.SpeedP10, s.SpeedP50, s.SpeedP90, s.SpeedMax, c.scratch =
		SpeedStats(speeds, c.scratch)
	s.CenterX, s.CenterY, s.Spread = Spread(positions)

	c.windowStartTick = currentTick
	c.ticks = 0
	c.skippedTicks = 0
	c.frames = 0
	c.droppedFrames = 0
	return s
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() uint64 {
	return c.windowDurationTicks
}
