package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Renderer handles all UI drawing with consistent styling.
type Renderer struct {
	Theme Theme
}

// NewRenderer creates a renderer with the default theme.
func NewRenderer() *Renderer {
	return &Renderer{Theme: DefaultTheme()}
}

// DrawPanel draws a panel background with border.
func (r *Renderer) DrawPanel(x, y, width, height int32) {
	rl.DrawRectangle(x, y, width, height, r.Theme.PanelBg)
	rl.DrawRectangleLines(x, y, width, height, r.Theme.PanelBorder)
}

// DrawSectionHeader draws a section header and returns the new Y position.
func (r *Renderer) DrawSectionHeader(x, y int32, title string) int32 {
	rl.DrawText(title, x, y, r.Theme.HeaderFontSize, r.Theme.SectionHeader)
	return y + r.Theme.LineHeight
}

// DrawLabelValue draws a label and value on the same line.
func (r *Renderer) DrawLabelValue(x, y int32, label, value string) int32 {
	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.LabelColor)
	rl.DrawText(value, x+r.Theme.LabelWidth, y, r.Theme.FontSize, r.Theme.ValueColor)
	return y + r.Theme.LineHeight
}

// DrawBar draws a progress bar for [0, 1] values. Values above warn are
// drawn in the alert color.
func (r *Renderer) DrawBar(x, y int32, label string, value, warn float32, width int32) int32 {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	barX := x + r.Theme.LabelWidth
	barWidth := width - r.Theme.LabelWidth - 50

	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.LabelColor)
	rl.DrawRectangle(barX, y+2, barWidth, r.Theme.BarHeight, r.Theme.BarBg)

	fill := r.Theme.BarFill
	if value > warn {
		fill = r.Theme.BarFillHigh
	}
	rl.DrawRectangle(barX, y+2, int32(float32(barWidth)*value), r.Theme.BarHeight, fill)
	rl.DrawText(fmt.Sprintf("%.0f%%", value*100), barX+barWidth+5, y, r.Theme.FontSize, r.Theme.ValueColor)

	return y + r.Theme.LineHeight
}

// DrawControl renders one bound control and returns the new Y position.
func (r *Renderer) DrawControl(x, y int32, d ControlDescriptor) int32 {
	switch d.Widget {
	case WidgetSection:
		return r.DrawSectionHeader(x, y, d.Label)

	case WidgetText:
		return r.DrawLabelValue(x, y, d.Label, d.Text())

	case WidgetCheckBox:
		if d.GetBool == nil || d.SetBool == nil {
			return y
		}
		bounds := rl.Rectangle{X: float32(x), Y: float32(y), Width: 14, Height: 14}
		cur := d.GetBool()
		if next := gui.CheckBox(bounds, d.Label, cur); next != cur {
			d.SetBool(next)
		}
		return y + r.Theme.LineHeight

	case WidgetSlider:
		if d.Get == nil {
			return y
		}
		rl.DrawText(d.Label, x, y+4, r.Theme.FontSize, r.Theme.LabelColor)
		bounds := rl.Rectangle{
			X:      float32(x + r.Theme.LabelWidth),
			Y:      float32(y),
			Width:  float32(r.Theme.SliderWidth),
			Height: float32(r.Theme.LineHeight - 6),
		}
		d.Apply(gui.SliderBar(bounds, "", "", d.Get(), d.Range.Min, d.Range.Max))
		rl.DrawText(d.Text(), x+r.Theme.LabelWidth+r.Theme.SliderWidth+6, y+4, r.Theme.FontSize, r.Theme.ValueColor)
		return y + r.Theme.LineHeight
	}
	return y
}
