package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/game"
	"github.com/pthm-cable/swarm/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics (soft backend only)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	backend := flag.String("backend", "", "Compute backend: soft | gl (empty = use config; gl needs raylib built with -tags opengl43)")
	particles := flag.Int("particles", 0, "Particle count (0 = use config)")
	seed := flag.Uint("seed", 0, "Seeding RNG seed (0 = use config)")
	maxTicks := flag.Uint64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	cfg := config.Cfg()
	if *particles > 0 {
		cfg.World.Particles = *particles
	}
	if *seed > 0 {
		cfg.World.Seed = uint32(*seed)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid flags", "error", err)
		return 1
	}

	opts := game.Options{
		Config:    cfg,
		Headless:  *headless,
		Backend:   *backend,
		OutputDir: *outputDir,
		LogStats:  *logStats,
		Logger:    logger,
	}

	addr := *metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts.Registry = reg

		srv := metrics.NewServer(addr, cfg.Metrics.Path, reg)
		go func() {
			slog.Info("serving metrics", "addr", addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics server exited", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	if *headless {
		return runHeadless(opts, *maxTicks)
	}
	return runWindowed(opts, cfg, *maxTicks)
}

// runHeadless steps the simulation until max ticks or an interrupt.
func runHeadless(opts game.Options, maxTicks uint64) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, err := game.NewGame(opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}
	defer g.Unload()

	slog.Info("starting headless simulation",
		"particles", opts.Config.World.Particles,
		"seed", opts.Config.World.Seed,
		"max_ticks", maxTicks,
	)

	for ctx.Err() == nil {
		g.UpdateHeadless()

		if maxTicks > 0 && g.Tick() >= maxTicks {
			slog.Info("max ticks reached", "tick", g.Tick())
			break
		}
	}
	return 0
}

// runWindowed opens the raylib window and runs the frame loop.
func runWindowed(opts game.Options, cfg *config.Config, maxTicks uint64) int {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Swarm")
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGame(opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}
	defer g.Unload()

	for !rl.WindowShouldClose() {
		g.Update()
		g.Draw()

		if maxTicks > 0 && g.Tick() >= maxTicks {
			break
		}
	}
	return 0
}
