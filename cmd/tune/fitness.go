package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/game"
	"github.com/pthm-cable/swarm/telemetry"
)

// Target describes the motion the tuner steers toward.
type Target struct {
	SpeedMean float64 // mean particle speed, world units per second
	Spread    float64 // RMS distance from the center of mass
}

// Fitness component weights and penalties.
const (
	weightSpeed     = 1.0
	weightSpread    = 1.0
	weightStability = 0.5

	warmupWindows = 2   // skip the collapse out of the seeding disc
	failedFitness = 1e6 // runs that produce no usable windows
)

// FitnessEvaluator runs headless simulations and scores their motion.
type FitnessEvaluator struct {
	space      Space
	maxTicks   uint64
	seeds      []uint32
	baseConfig *config.Config
	target     Target
	parallel   int // concurrent runs, negative for one per seed
	logger     *slog.Logger

	mu         sync.Mutex
	lastSpeed  float64 // mean speed from the most recent Evaluate call
	lastSpread float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(space Space, maxTicks uint64, seeds []uint32, baseCfg *config.Config, target Target) *FitnessEvaluator {
	return &FitnessEvaluator{
		space:      space,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
		target:     target,
		parallel:   -1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetParallel bounds how many seeds run at once (0 = all).
func (fe *FitnessEvaluator) SetParallel(n int) {
	if n <= 0 {
		n = -1
	}
	fe.parallel = n
}

// Last returns the mean speed and spread measured by the most recent
// evaluation.
func (fe *FitnessEvaluator) Last() (speed, spread float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSpeed, fe.lastSpread
}

// runResult holds the windows collected from one seed.
type runResult struct {
	windows []telemetry.MotionStats
	err     error
}

// Evaluate computes fitness for config values x (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runResult, len(fe.seeds))
	var g errgroup.Group
	g.SetLimit(fe.parallel)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			results[i] = fe.runSimulation(x, seed)
			return nil
		})
	}
	// Failed runs are scored, not returned.
	_ = g.Wait()

	var total, speedSum, spreadSum float64
	for _, r := range results {
		if r.err != nil {
			total += failedFitness
			continue
		}
		f, speed, spread := fe.computeFitness(r.windows)
		total += f
		speedSum += speed
		spreadSum += spread
	}

	n := float64(len(fe.seeds))
	fe.mu.Lock()
	fe.lastSpeed = speedSum / n
	fe.lastSpread = spreadSum / n
	fe.mu.Unlock()

	return total / n
}

// runSimulation executes a single headless run of maxTicks ticks.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed uint32) runResult {
	cfg := fe.copyConfig()
	fe.space.Write(cfg, x)
	cfg.World.Seed = seed
	cfg.Telemetry.OutputDir = ""
	cfg.Metrics.Addr = ""

	var result runResult
	g, err := game.NewGame(game.Options{
		Config:   cfg,
		Headless: true,
		Backend:  "soft",
		Logger:   fe.logger,
		StatsCallback: func(stats telemetry.MotionStats) {
			result.windows = append(result.windows, stats)
		},
	})
	if err != nil {
		result.err = err
		return result
	}
	defer g.Unload()

	// Bounded so a stalled device cannot hang the tuner.
	limit := fe.maxTicks * 100
	for i := uint64(0); g.Tick() < fe.maxTicks && i < limit; i++ {
		g.UpdateHeadless()
	}
	return result
}

// copyConfig returns a copy of the base config. Every tuned field is a
// plain value so a shallow copy is enough.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	c := *fe.baseConfig
	return &c
}

// computeFitness scores the windows past warmup. It returns the fitness
// with the mean speed and spread it was computed from.
func (fe *FitnessEvaluator) computeFitness(windows []telemetry.MotionStats) (fitness, speed, spread float64) {
	if len(windows) <= warmupWindows {
		return failedFitness, 0, 0
	}
	valid := windows[warmupWindows:]

	speeds := make([]float64, len(valid))
	spreads := make([]float64, len(valid))
	for i, w := range valid {
		speeds[i] = w.SpeedMean
		spreads[i] = w.Spread
	}
	speed = stat.Mean(speeds, nil)
	spread = stat.Mean(spreads, nil)
	if !isFinite(speed) || !isFinite(spread) {
		return failedFitness, speed, spread
	}

	fitness = weightSpeed*relErr2(speed, fe.target.SpeedMean) +
		weightSpread*relErr2(spread, fe.target.Spread)
	if len(speeds) >= 2 && speed > 0 {
		cv := stat.PopStdDev(speeds, nil) / speed
		fitness += weightStability * cv * cv
	}
	return fitness, speed, spread
}

// relErr2 is the squared relative error of got against want.
func relErr2(got, want float64) float64 {
	if want == 0 {
		return got * got
	}
	d := (got - want) / want
	return d * d
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
