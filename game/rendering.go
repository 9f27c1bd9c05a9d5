package game

import (
	"errors"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/swarm/renderer"
	"github.com/pthm-cable/swarm/telemetry"
	"github.com/pthm-cable/swarm/ui"
)

const controlsLegend = "[Tab] panel  [F3] perf  [P] pause  [Space] reset view  [MMB] pan  [Wheel] zoom"

// Draw renders the game.
func (g *Game) Draw() {
	g.perfCollector.RecordFrame()

	view := g.camera.View()
	projection := g.camera.Projection()
	gx, gy := g.sim.Params().GravityPoint()

	back := 1 - g.front
	rl.BeginTextureMode(g.frames[back])
	rl.ClearBackground(rl.Black)
	g.backdrop.Draw(view, projection, g.sim.Bounds().Rect(), gx, gy)
	// Flush raylib's batch so it lands under the particles.
	rl.DrawRenderBatchActive()

	start := time.Now()
	err := g.sim.Render(view, projection)
	g.perfCollector.AddPhase(telemetry.PhaseRender, time.Since(start))
	rl.EndTextureMode()

	dropped := errors.Is(err, renderer.ErrFrameNotReady)
	switch {
	case err == nil:
		g.front = back
	case !dropped:
		g.logger.Error("render failed", "tick", g.tick, "error", err)
	}
	g.collector.RecordFrame(dropped)

	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)
	tex := g.frames[g.front].Texture
	// Render textures are stored bottom-up.
	src := rl.Rectangle{X: 0, Y: 0, Width: float32(tex.Width), Height: -float32(tex.Height)}
	rl.DrawTextureRec(tex, src, rl.Vector2{}, rl.White)
	g.drawUI()
	rl.EndDrawing()
}

// drawUI renders the HUD and panels.
func (g *Game) drawUI() {
	stats := g.perfCollector.Stats()
	var dropped int64
	if r := g.sim.Renderer(); r != nil {
		dropped = int64(r.Dropped())
	}

	g.hud.Draw(ui.HUDData{
		Title:        "Swarm",
		Backend:      g.pipe.dev.Name(),
		Particles:    g.sim.ParticleCount(),
		BufferSets:   g.sim.Ring().Len(),
		Tick:         g.tick,
		FPS:          rl.GetFPS(),
		FrameTime:    stats.FrameDuration,
		SkipRate:     stats.SkipRate,
		Dropped:      dropped,
		TimeScale:    g.sim.TimeScale(),
		FarField:     g.sim.Params().FarField(),
		Paused:       g.paused,
		ScreenWidth:  int32(g.screenWidth),
		ScreenHeight: int32(g.screenHeight),
	})
	g.controls.Draw()
	if g.showPerf {
		g.perfPanel.Draw(stats)
	}
	g.hud.DrawControls(int32(g.screenWidth), int32(g.screenHeight), controlsLegend)
}
