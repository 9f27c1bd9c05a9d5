package renderer

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/swarm/gpu"
)

// RaylibBackend draws particles from host-visible buffers with raylib. The
// buffers are the device memory itself, so nothing is read back.
type RaylibBackend struct {
	mapper  gpu.HostMapper
	palette *Palette
	colors  [PaletteSize]rl.Color

	ScreenW, ScreenH float32
	// MaxSpeed maps to the last palette entry.
	MaxSpeed float32
	// PointSize is the edge of each drawn point in pixels.
	PointSize float32
	// MaxPoints caps the points drawn per frame by striding (0 = all).
	MaxPoints int
}

// NewRaylibBackend returns a backend drawing to a screen of the given size.
func NewRaylibBackend(mapper gpu.HostMapper, palette *Palette, screenW, screenH int32, maxSpeed, pointSize float32) *RaylibBackend {
	b := &RaylibBackend{
		mapper:    mapper,
		palette:   palette,
		ScreenW:   float32(screenW),
		ScreenH:   float32(screenH),
		MaxSpeed:  maxSpeed,
		PointSize: pointSize,
	}
	for i := range b.colors {
		b.colors[i] = palette.RGBA(i)
	}
	return b
}

// DrawInstanced projects each particle and draws it colored by speed.
func (b *RaylibBackend) DrawInstanced(positions, speeds gpu.Buffer, count int, view, projection mgl32.Mat4) error {
	pos, err := b.mapper.Map(positions)
	if err != nil {
		return fmt.Errorf("map positions: %w", err)
	}
	spd, err := b.mapper.Map(speeds)
	if err != nil {
		return fmt.Errorf("map speeds: %w", err)
	}
	count = min(count, len(pos)/2, len(spd))

	stride := 1
	if b.MaxPoints > 0 && count > b.MaxPoints {
		stride = (count + b.MaxPoints - 1) / b.MaxPoints
	}

	mvp := projection.Mul4(view)
	size := b.PointSize
	for i := 0; i < count; i += stride {
		sx, sy, ok := Project(mvp, pos[2*i], pos[2*i+1], b.ScreenW, b.ScreenH)
		if !ok {
			continue
		}
		c := b.colors[b.palette.Index(spd[i], b.MaxSpeed)]
		if size <= 1 {
			rl.DrawPixelV(rl.Vector2{X: sx, Y: sy}, c)
		} else {
			rl.DrawRectangleV(rl.Vector2{X: sx - size/2, Y: sy - size/2}, rl.Vector2{X: size, Y: size}, c)
		}
	}
	return nil
}

// Project maps a world point to screen pixels through mvp. ok is false for
// points outside the clip volume.
func Project(mvp mgl32.Mat4, x, y, screenW, screenH float32) (sx, sy float32, ok bool) {
	clip := mvp.Mul4x1(mgl32.Vec4{x, y, 0, 1})
	if clip[3] <= 0 {
		return 0, 0, false
	}
	nx, ny := clip[0]/clip[3], clip[1]/clip[3]
	if nx < -1 || nx > 1 || ny < -1 || ny > 1 {
		return 0, 0, false
	}
	sx = (nx + 1) * 0.5 * screenW
	sy = (1 - ny) * 0.5 * screenH
	return sx, sy, true
}
