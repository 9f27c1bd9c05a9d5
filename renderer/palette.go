package renderer

import rl "github.com/gen2brain/raylib-go/raylib"

// PaletteSize is the number of entries in the speed color table.
const PaletteSize = 256

var (
	babyBlue = [3]float32{0.2, 0.8, 1.0}
	hotPink  = [3]float32{1.0, 0.1, 0.8}
)

// Palette maps normalized speed to color, RGBA in [0,1].
type Palette [PaletteSize][4]float32

// NewPalette builds the baby blue to hot pink gradient with smoothstep
// easing. Entry 0 is at rest, the last entry at full speed.
func NewPalette() *Palette {
	var p Palette
	for i := range p {
		t := float32(i) / float32(PaletteSize-1)
		s := t * t * (3 - 2*t)
		for c := 0; c < 3; c++ {
			p[i][c] = babyBlue[c] + (hotPink[c]-babyBlue[c])*s
		}
		p[i][3] = 1
	}
	return &p
}

// Index returns the entry for speed, with maxSpeed mapping to the last one.
func (p *Palette) Index(speed, maxSpeed float32) int {
	if maxSpeed <= 0 || speed <= 0 {
		return 0
	}
	t := speed / maxSpeed
	if t >= 1 {
		return PaletteSize - 1
	}
	return int(t*float32(PaletteSize-1) + 0.5)
}

// Color returns the raylib color for speed.
func (p *Palette) Color(speed, maxSpeed float32) rl.Color {
	return p.RGBA(p.Index(speed, maxSpeed))
}

// RGBA converts entry i to 8-bit color.
func (p *Palette) RGBA(i int) rl.Color {
	e := p[i]
	return rl.Color{
		R: uint8(e[0]*255 + 0.5),
		G: uint8(e[1]*255 + 0.5),
		B: uint8(e[2]*255 + 0.5),
		A: uint8(e[3]*255 + 0.5),
	}
}

// Floats flattens the table for upload to a storage buffer.
func (p *Palette) Floats() []float32 {
	out := make([]float32, 0, PaletteSize*4)
	for _, e := range p {
		out = append(out, e[:]...)
	}
	return out
}
