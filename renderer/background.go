package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/swarm/quadtree"
)

// Backdrop draws a reference grid on the z = 0 plane, the seeding rectangle
// and the gravity point under the particles.
type Backdrop struct {
	screenW, screenH float32

	// GridHalf is the grid's half extent in world units (0 disables it).
	GridHalf    float32
	GridSpacing float32

	GridColor    rl.Color
	AxisColor    rl.Color
	BoundsColor  rl.Color
	MarkerColor  rl.Color
	MarkerRadius float32
}

// NewBackdrop creates a backdrop for a screen of the given size.
func NewBackdrop(screenW, screenH int32) *Backdrop {
	return &Backdrop{
		screenW:      float32(screenW),
		screenH:      float32(screenH),
		GridHalf:     10,
		GridSpacing:  1,
		GridColor:    rl.Color{R: 30, G: 30, B: 40, A: 255},
		AxisColor:    rl.Color{R: 50, G: 50, B: 70, A: 255},
		BoundsColor:  rl.Color{R: 60, G: 60, B: 90, A: 255},
		MarkerColor:  rl.Color{R: 255, G: 26, B: 204, A: 200},
		MarkerRadius: 4,
	}
}

// Resize follows a window resize.
func (b *Backdrop) Resize(screenW, screenH int32) {
	b.screenW, b.screenH = float32(screenW), float32(screenH)
}

// Draw draws the grid, outlines bounds and marks (gx, gy).
func (b *Backdrop) Draw(view, projection mgl32.Mat4, bounds quadtree.Rect, gx, gy float32) {
	mvp := projection.Mul4(view)

	if b.GridHalf > 0 && b.GridSpacing > 0 {
		h := b.GridHalf
		for v := -h; v <= h; v += b.GridSpacing {
			c := b.GridColor
			if v == 0 {
				c = b.AxisColor
			}
			b.line(mvp, v, -h, v, h, c)
			b.line(mvp, -h, v, h, v, c)
		}
	}

	b.line(mvp, bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MinY, b.BoundsColor)
	b.line(mvp, bounds.MaxX, bounds.MinY, bounds.MaxX, bounds.MaxY, b.BoundsColor)
	b.line(mvp, bounds.MaxX, bounds.MaxY, bounds.MinX, bounds.MaxY, b.BoundsColor)
	b.line(mvp, bounds.MinX, bounds.MaxY, bounds.MinX, bounds.MinY, b.BoundsColor)

	if sx, sy, ok := Project(mvp, gx, gy, b.screenW, b.screenH); ok {
		rl.DrawCircleLines(int32(sx), int32(sy), b.MarkerRadius, b.MarkerColor)
	}
}

// line draws a world-space segment. Endpoints may fall off screen; raylib
// clips the line. Segments with an endpoint behind the camera are skipped.
func (b *Backdrop) line(mvp mgl32.Mat4, x0, y0, x1, y1 float32, c rl.Color) {
	p0, ok0 := b.toScreen(mvp, x0, y0)
	p1, ok1 := b.toScreen(mvp, x1, y1)
	if !ok0 || !ok1 {
		return
	}
	rl.DrawLineV(p0, p1, c)
}

func (b *Backdrop) toScreen(mvp mgl32.Mat4, x, y float32) (rl.Vector2, bool) {
	clip := mvp.Mul4x1(mgl32.Vec4{x, y, 0, 1})
	if clip[3] <= 0 {
		return rl.Vector2{}, false
	}
	return rl.Vector2{
		X: (clip[0]/clip[3] + 1) * 0.5 * b.screenW,
		Y: (1 - clip[1]/clip[3]) * 0.5 * b.screenH,
	}, true
}
