package ui

import (
	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/swarm/sim"
)

// ParamControls binds the tunables in store to sliders. Writes go through
// the store setters, so they take effect at the next tick's snapshot.
func ParamControls(store *sim.ParamStore) []ControlDescriptor {
	return []ControlDescriptor{
		{ID: "forces", Label: "Forces", Widget: WidgetSection},
		{
			ID:     "force_scale",
			Label:  "Force scale",
			Widget: WidgetSlider,
			Format: "%.0f",
			Range:  FieldRange{0, 500},
			Get:    store.ForceScale,
			Set:    store.SetForceScale,
		},
		{
			ID:     "attraction",
			Label:  "Attraction",
			Widget: WidgetSlider,
			Range:  FieldRange{0, 5},
			Get:    store.AttractionStrength,
			Set:    store.SetAttractionStrength,
		},
		{
			ID:     "max_force",
			Label:  "Max force",
			Widget: WidgetSlider,
			Format: "%.0f",
			Range:  FieldRange{1, 1000},
			Get:    store.MaxForce,
			Set:    store.SetMaxForce,
		},
		{
			ID:     "min_distance",
			Label:  "Min distance",
			Widget: WidgetSlider,
			Format: "%.4f",
			Range:  FieldRange{0.0001, 1},
			Get:    store.MinDistance,
			Set:    store.SetMinDistance,
		},

		{ID: "motion", Label: "Motion", Widget: WidgetSection},
		{
			ID:     "damping",
			Label:  "Damping",
			Widget: WidgetSlider,
			Format: "%.3f",
			Range:  FieldRange{0, 1},
			Get:    store.Damping,
			Set:    store.SetDamping,
		},
		{
			ID:     "terminal_velocity",
			Label:  "Terminal vel",
			Widget: WidgetSlider,
			Format: "%.0f",
			Range:  FieldRange{1, 500},
			Get:    store.TerminalVelocity,
			Set:    store.SetTerminalVelocity,
		},
		{
			ID:     "time_scale",
			Label:  "Time scale",
			Widget: WidgetSlider,
			Format: "%.3f",
			Range:  FieldRange{0, 1},
			Get:    store.TimeScale,
			Set:    store.SetTimeScale,
		},

		{ID: "mouse", Label: "Mouse", Widget: WidgetSection},
		{
			ID:     "mouse_radius",
			Label:  "Radius",
			Widget: WidgetSlider,
			Format: "%.1f",
			Range:  FieldRange{0, 20},
			Get:    store.MouseForceRadius,
			Set:    store.SetMouseForceRadius,
		},
		{
			ID:     "mouse_strength",
			Label:  "Strength",
			Widget: WidgetSlider,
			Range:  FieldRange{0, 10},
			Get:    store.MouseForceStrength,
			Set:    store.SetMouseForceStrength,
		},

		{ID: "far_field", Label: "Far field", Widget: WidgetSection},
		{
			ID:      "far_field_on",
			Label:   "Quadtree",
			Widget:  WidgetCheckBox,
			GetBool: store.FarField,
			SetBool: store.SetFarField,
		},
		{
			ID:     "theta",
			Label:  "Theta",
			Widget: WidgetSlider,
			Range:  FieldRange{0, 1.5},
			Get:    store.Theta,
			Set:    store.SetTheta,
		},
	}
}

// ControlPanel renders the side panel of parameter sliders.
type ControlPanel struct {
	renderer *Renderer
	controls []ControlDescriptor
	x, y     int32
	width    int32
	visible  bool

	// OnReset is called when the reset button is pressed.
	OnReset func()
}

// NewControlPanel creates a panel for controls.
func NewControlPanel(x, y, width int32, controls []ControlDescriptor) *ControlPanel {
	return &ControlPanel{
		renderer: NewRenderer(),
		controls: controls,
		x:        x,
		y:        y,
		width:    width,
		visible:  true,
	}
}

// SetVisible shows or hides the panel.
func (c *ControlPanel) SetVisible(visible bool) {
	c.visible = visible
}

// IsVisible returns whether the panel is shown.
func (c *ControlPanel) IsVisible() bool {
	return c.visible
}

// Toggle switches panel visibility.
func (c *ControlPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Contains reports whether a screen point falls on the panel, so mouse
// input there is not also applied to the simulation.
func (c *ControlPanel) Contains(x, y float32) bool {
	if !c.visible {
		return false
	}
	return x >= float32(c.x) && x < float32(c.x+c.width) &&
		y >= float32(c.y) && y < float32(c.y+c.height())
}

func (c *ControlPanel) height() int32 {
	t := c.renderer.Theme
	return int32(len(c.controls)+2)*t.LineHeight + t.Padding*2
}

// Draw renders the panel and applies any control changes. Returns the Y
// position below the panel.
func (c *ControlPanel) Draw() int32 {
	if !c.visible {
		return c.y
	}

	r := c.renderer
	padding := r.Theme.Padding
	r.DrawPanel(c.x, c.y, c.width, c.height())

	y := c.y + padding
	rl.DrawText("Parameters", c.x+padding, y, 16, rl.White)
	y += r.Theme.LineHeight

	for _, d := range c.controls {
		y = r.DrawControl(c.x+padding, y, d)
	}

	if c.OnReset != nil {
		bounds := rl.Rectangle{X: float32(c.x + padding), Y: float32(y), Width: 100, Height: float32(r.Theme.LineHeight - 4)}
		if gui.Button(bounds, "Reset view") {
			c.OnReset()
		}
	}
	return c.y + c.height()
}
