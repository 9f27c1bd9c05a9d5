package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/swarm/telemetry"
)

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Title        string
	Backend      string
	Particles    int
	BufferSets   int
	Tick         uint64
	FPS          int32
	FrameTime    time.Duration
	SkipRate     float64
	Dropped      int64
	TimeScale    float32
	FarField     bool
	Paused       bool
	ScreenWidth  int32
	ScreenHeight int32
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{
		renderer: NewRenderer(),
	}
}

// Lines returns the HUD text lines below the title.
func (d HUDData) Lines() []string {
	far := "off"
	if d.FarField {
		far = "on"
	}
	return []string{
		fmt.Sprintf("Particles: %d | Sets: %d | Backend: %s", d.Particles, d.BufferSets, d.Backend),
		fmt.Sprintf("Tick: %d | FPS: %d | Frame: %s", d.Tick, d.FPS, d.FrameTime.Round(10*time.Microsecond)),
		fmt.Sprintf("Skipped: %.1f%% | Dropped frames: %d", d.SkipRate*100, d.Dropped),
		fmt.Sprintf("Time scale: %.3f | Far field: %s", d.TimeScale, far),
	}
}

// Draw renders the HUD anchored at the top right.
func (h *HUD) Draw(data HUDData) {
	const width = 330
	x := data.ScreenWidth - width - 10

	rl.DrawText(data.Title, x, 10, 20, rl.White)
	y := int32(35)
	for _, line := range data.Lines() {
		rl.DrawText(line, x, y, 16, rl.LightGray)
		y += 20
	}

	statusText := "Running"
	if data.Paused {
		statusText = "PAUSED"
	}
	rl.DrawText(statusText, x, y, 16, rl.Yellow)
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenWidth, screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// PerfPanel renders the per-phase timing panel.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y, width int32) *PerfPanel {
	return &PerfPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
	}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders the performance panel.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	r := p.renderer
	x := p.x
	y := p.y

	rl.DrawText("Pipeline", x, y, 16, rl.White)
	y += 20

	rl.DrawText(fmt.Sprintf("Tick: %s (max %s)", stats.AvgTickDuration.Round(time.Microsecond),
		stats.MaxTickDuration.Round(time.Microsecond)), x, y, 14, rl.Yellow)
	y += 18

	for _, name := range telemetry.Phases {
		avg, ok := stats.PhaseAvg[name]
		if !ok {
			continue
		}
		pct := stats.PhasePct[name]

		color := rl.LightGray
		if pct > 50 {
			color = rl.Red
		} else if pct > 25 {
			color = rl.Orange
		}
		rl.DrawText(fmt.Sprintf("%-10s %8s %5.1f%%", name, avg.Round(time.Microsecond), pct), x, y, 12, color)
		y += 14
	}

	y += 4
	r.DrawBar(x, y, "Skip rate", float32(stats.SkipRate), 0.1, p.width)
}
