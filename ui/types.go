// Package ui provides a descriptor-driven control surface for the simulation.
// Controls are defined through metadata bound to getters and setters, so a
// new tunable only needs a descriptor, not new drawing code.
package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// WidgetType specifies how a control should be rendered.
type WidgetType int

const (
	WidgetSlider   WidgetType = iota // Continuous value in a range
	WidgetCheckBox                   // On/off toggle
	WidgetText                       // Read-only value
	WidgetSection                    // Section header
)

// FieldRange defines the value range for sliders.
type FieldRange struct {
	Min float32
	Max float32
}

// Clamp restricts v to the range.
func (r FieldRange) Clamp(v float32) float32 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// ControlDescriptor binds one control to a value.
type ControlDescriptor struct {
	ID     string
	Label  string
	Widget WidgetType
	Format string // Printf format for the value (e.g., "%.2f")
	Range  FieldRange

	Get func() float32
	Set func(float32)

	GetBool func() bool
	SetBool func(bool)
}

// Text formats the current value for display.
func (d ControlDescriptor) Text() string {
	switch d.Widget {
	case WidgetCheckBox:
		if d.GetBool != nil && d.GetBool() {
			return "on"
		}
		return "off"
	case WidgetSection:
		return ""
	}
	if d.Get == nil {
		return ""
	}
	format := d.Format
	if format == "" {
		format = "%.2f"
	}
	return fmt.Sprintf(format, d.Get())
}

// Apply writes a slider result back if it moved, clamped to the range.
// It reports whether the value changed.
func (d ControlDescriptor) Apply(v float32) bool {
	if d.Set == nil || d.Get == nil {
		return false
	}
	v = d.Range.Clamp(v)
	if v == d.Get() {
		return false
	}
	d.Set(v)
	return true
}

// Theme holds UI styling constants.
type Theme struct {
	PanelBg        rl.Color
	PanelBorder    rl.Color
	SectionHeader  rl.Color
	LabelColor     rl.Color
	ValueColor     rl.Color
	BarBg          rl.Color
	BarFill        rl.Color
	BarFillHigh    rl.Color
	Padding        int32
	LineHeight     int32
	LabelWidth     int32
	SliderWidth    int32
	BarHeight      int32
	FontSize       int32
	HeaderFontSize int32
}

// DefaultTheme returns the default UI theme.
func DefaultTheme() Theme {
	return Theme{
		PanelBg:        rl.Color{R: 20, G: 25, B: 30, A: 240},
		PanelBorder:    rl.Color{R: 60, G: 70, B: 80, A: 255},
		SectionHeader:  rl.Yellow,
		LabelColor:     rl.LightGray,
		ValueColor:     rl.LightGray,
		BarBg:          rl.Color{R: 40, G: 40, B: 40, A: 255},
		BarFill:        rl.Color{R: 100, G: 150, B: 200, A: 255},
		BarFillHigh:    rl.Color{R: 200, G: 100, B: 100, A: 255},
		Padding:        10,
		LineHeight:     22,
		LabelWidth:     120,
		SliderWidth:    140,
		BarHeight:      12,
		FontSize:       12,
		HeaderFontSize: 14,
	}
}
