package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/swarm/config"
)

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Uint64("max-ticks", 600, "Ticks per run")
	particles := flag.Int("particles", 5000, "Particles per run (0 = use config)")
	seeds := flag.Int("seeds", 3, "Runs per evaluation, one seed each")
	parallel := flag.Int("parallel", 0, "Seeds run concurrently (0 = all)")
	maxEvals := flag.Int("max-evals", 200, "Evaluation budget")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	step := flag.Float64("step", 0.3, "Initial CMA-ES step size in unit-cube coordinates")
	targetSpeed := flag.Float64("target-speed", 2.0, "Target mean particle speed")
	targetSpread := flag.Float64("target-spread", 4.0, "Target RMS spread around the center of mass")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	base, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *particles > 0 {
		base.World.Particles = *particles
	}
	// Runs share the process, so only the soft device can serve them.
	base.Pipeline.Backend = "soft"
	if err := base.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	space := DefaultSpace()
	runSeeds := make([]uint32, *seeds)
	for i := range runSeeds {
		runSeeds[i] = uint32(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(space, *maxTicks, runSeeds, base, Target{
		SpeedMean: *targetSpeed,
		Spread:    *targetSpread,
	})
	evaluator.SetParallel(*parallel)

	rec, err := newRecorder(filepath.Join(*outputDir, "tune_log.csv"), space, *maxEvals)
	if err != nil {
		log.Fatalf("failed to create log: %v", err)
	}
	defer rec.Close()

	popSize := *population
	if popSize == 0 {
		popSize = 4 + 3*len(space)/2
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			values := space.FromUnit(u)
			fitness := evaluator.Evaluate(values)
			speed, spread := evaluator.Last()
			rec.Record(fitness, speed, spread, values)
			return fitness
		},
	}
	settings := &optimize.Settings{FuncEvaluations: *maxEvals}
	method := &optimize.CmaEsChol{InitStepSize: *step, Population: popSize}

	fmt.Printf("Tuning %d parameters: population=%d, max_evals=%d, seeds=%d, ticks=%d, particles=%d\n",
		len(space), popSize, *maxEvals, *seeds, *maxTicks, base.World.Particles)

	if _, err := optimize.Minimize(problem, space.ToUnit(space.Read(base)), settings, method); err != nil {
		log.Printf("tuning ended: %v", err)
	}

	best, bestFitness := rec.Best()
	if best == nil {
		log.Fatal("no evaluation completed")
	}
	fmt.Printf("\nDone after %d evaluations in %s, best fitness %.4f\n",
		rec.evals, formatDuration(time.Since(rec.start)), bestFitness)
	for i, p := range space {
		fmt.Printf("  %s: %.6f\n", p.Path, best[i])
	}

	out, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	space.Write(out, best)
	path := filepath.Join(*outputDir, "best_config.yaml")
	if err := out.WriteYAML(path); err != nil {
		log.Printf("failed to write best config: %v", err)
		return
	}
	fmt.Printf("Best config saved to: %s\n", path)
}

// recorder logs every evaluation to CSV and stdout and keeps the best one.
type recorder struct {
	f      *os.File
	w      *csv.Writer
	budget int
	start  time.Time

	evals       int
	best        []float64
	bestFitness float64
}

func newRecorder(path string, space Space, budget int) (*recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	header := []string{"eval", "fitness", "speed", "spread"}
	for _, p := range space {
		header = append(header, p.Path)
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &recorder{f: f, w: w, budget: budget, start: time.Now(), bestFitness: 1e9}, nil
}

// Record logs one evaluation of values.
func (r *recorder) Record(fitness, speed, spread float64, values []float64) {
	r.evals++
	if fitness < r.bestFitness {
		r.bestFitness = fitness
		r.best = append(r.best[:0], values...)
	}

	row := []string{
		strconv.Itoa(r.evals),
		strconv.FormatFloat(fitness, 'f', 6, 64),
		strconv.FormatFloat(speed, 'f', 4, 64),
		strconv.FormatFloat(spread, 'f', 4, 64),
	}
	for _, v := range values {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	r.w.Write(row)
	r.w.Flush()

	elapsed := time.Since(r.start)
	eta := time.Duration(r.budget-r.evals) * (elapsed / time.Duration(r.evals))
	fmt.Printf("Eval %d/%d: fitness=%.4f speed=%.3f spread=%.3f (best=%.4f) | elapsed: %s, ETA: %s\n",
		r.evals, r.budget, fitness, speed, spread, r.bestFitness,
		formatDuration(elapsed), formatDuration(eta))
}

// Best returns the best values seen and their fitness.
func (r *recorder) Best() ([]float64, float64) { return r.best, r.bestFitness }

func (r *recorder) Close() error {
	r.w.Flush()
	return r.f.Close()
}

// formatDuration formats a duration as HhMMmSSs or MmSSs.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
