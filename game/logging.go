package game

import "time"

// logPerfStats logs the rolling pipeline timings and ring counters.
func (g *Game) logPerfStats() {
	stats := g.perfCollector.Stats()
	stepper := g.sim.Stepper()

	attrs := []any{
		"tick", g.tick,
		"state", stepper.State().String(),
		"skipped_total", stepper.Skipped(),
		"rotations", g.sim.Ring().Rotations(),
		"avg_tick", stats.AvgTickDuration.Round(time.Microsecond),
		"skip_rate", stats.SkipRate,
	}
	if r := g.sim.Renderer(); r != nil {
		attrs = append(attrs, "frames", r.Frames(), "dropped_frames", r.Dropped())
	}
	if tree := stepper.Tree(); tree != nil && g.sim.Params().FarField() {
		attrs = append(attrs, "tree_nodes", tree.Len(), "tree_dropped", tree.Dropped())
	}
	g.logger.Info("pipeline", attrs...)

	if g.logStats {
		stats.LogStats()
	}
}
