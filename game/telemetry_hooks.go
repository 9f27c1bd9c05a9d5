package game

import (
	"errors"

	"github.com/pthm-cable/swarm/renderer"
	"github.com/pthm-cable/swarm/sim"
	"github.com/pthm-cable/swarm/telemetry"
)

// flushTelemetry closes the stats window when it is complete.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats, sampled := g.sampleMotion()
	if !sampled {
		// Counters only; speed and spread stay zero for this window.
		stats = g.collector.Flush(g.tick, g.sim.ParticleCount(), nil, nil)
	}
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}
	if g.metrics != nil {
		g.metrics.MeanSpeed.Set(stats.SpeedMean)
	}

	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := g.outputManager.WriteMotion(stats); err != nil {
		g.logger.Error("failed to write motion", "error", err)
	}
	if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		g.logger.Error("failed to write perf", "error", err)
	}
}

// sampleMotion flushes the window from the latest computed set when the
// device buffers can be read on the host.
func (g *Game) sampleMotion() (telemetry.MotionStats, bool) {
	var stats telemetry.MotionStats
	err := g.sim.ReadBack(g.cfg.Derived.FenceTimeout, func(positions, speeds []float32) {
		stats = g.collector.Flush(g.tick, g.sim.ParticleCount(), positions, speeds)
	})
	switch {
	case err == nil:
		return stats, true
	case errors.Is(err, sim.ErrNotHostVisible), errors.Is(err, renderer.ErrFrameNotReady):
	default:
		g.logger.Warn("motion sample failed", "tick", g.tick, "error", err)
	}
	return stats, false
}
