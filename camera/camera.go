// Package camera provides a perspective camera looking down the -Z axis at
// the particle plane.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	nearPlane = 0.1
	farPlane  = 100
	// zoomStep is the fraction of the current field of view one scroll
	// notch removes.
	zoomStep = 0.1
)

// Camera controls the viewport into the simulation plane (z = 0).
// Zoom is the vertical field of view in degrees; scrolling moves a target
// which Update approaches smoothly.
type Camera struct {
	// Position is the eye. The camera always faces -Z with +Y up.
	Position mgl32.Vec3

	// Zoom is the current field of view, TargetZoom where it is heading.
	Zoom, TargetZoom float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// Zoom constraints and speeds
	MinZoom, MaxZoom float32
	ZoomSpeed        float32
	PanSpeed         float32

	home        mgl32.Vec3
	defaultZoom float32
}

// Options configures a camera. Zero fields take the defaults below.
type Options struct {
	Zoom      float32 // default 45
	MinZoom   float32 // default 1
	MaxZoom   float32 // default 150
	ZoomSpeed float32 // default 5
	PanSpeed  float32 // default 0.005
	Distance  float32 // default 5
}

// New creates a camera at (0, 0, distance) looking at the origin.
func New(viewportW, viewportH float32, opts Options) *Camera {
	if opts.Zoom <= 0 {
		opts.Zoom = 45
	}
	if opts.MinZoom <= 0 {
		opts.MinZoom = 1
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = 150
	}
	if opts.ZoomSpeed <= 0 {
		opts.ZoomSpeed = 5
	}
	if opts.PanSpeed <= 0 {
		opts.PanSpeed = 0.005
	}
	if opts.Distance <= 0 {
		opts.Distance = 5
	}
	zoom := clamp(opts.Zoom, opts.MinZoom, opts.MaxZoom)
	home := mgl32.Vec3{0, 0, opts.Distance}
	return &Camera{
		Position:    home,
		Zoom:        zoom,
		TargetZoom:  zoom,
		ViewportW:   viewportW,
		ViewportH:   viewportH,
		MinZoom:     opts.MinZoom,
		MaxZoom:     opts.MaxZoom,
		ZoomSpeed:   opts.ZoomSpeed,
		PanSpeed:    opts.PanSpeed,
		home:        home,
		defaultZoom: zoom,
	}
}

// View returns the look-at matrix.
func (c *Camera) View() mgl32.Mat4 {
	center := c.Position.Add(mgl32.Vec3{0, 0, -1})
	return mgl32.LookAtV(c.Position, center, mgl32.Vec3{0, 1, 0})
}

// Projection returns the perspective matrix for the current zoom.
func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.Zoom), c.aspect(), nearPlane, farPlane)
}

func (c *Camera) aspect() float32 {
	if c.ViewportH <= 0 {
		return 1
	}
	return c.ViewportW / c.ViewportH
}

// Pan moves the camera by a mouse drag of (dx, dy) screen pixels so the
// plane follows the cursor.
func (c *Camera) Pan(dx, dy float32) {
	c.Position[0] -= dx * c.PanSpeed
	c.Position[1] += dy * c.PanSpeed
}

// Scroll moves the zoom target by wheel notches; positive zooms in.
func (c *Camera) Scroll(notches float32) {
	c.TargetZoom -= notches * c.TargetZoom * zoomStep
	c.TargetZoom = clamp(c.TargetZoom, c.MinZoom, c.MaxZoom)
}

// Update eases Zoom toward TargetZoom.
func (c *Camera) Update(dt float32) {
	step := c.ZoomSpeed * dt
	if step > 1 {
		step = 1
	}
	c.Zoom += (c.TargetZoom - c.Zoom) * step
}

// Reset returns the camera to its starting position and zoom.
func (c *Camera) Reset() {
	c.Position = c.home
	c.Zoom = c.defaultZoom
	c.TargetZoom = c.defaultZoom
}

// Resize updates viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH float32) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
}

// ScreenToWorld casts a ray through the screen pixel (origin top-left) and
// returns where it meets the z = 0 plane. ok is false when the ray is
// parallel to the plane or the matrices are singular.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wy float32, ok bool) {
	if c.ViewportW <= 0 || c.ViewportH <= 0 {
		return 0, 0, false
	}
	vp := c.Projection().Mul4(c.View())
	if vp.Det() == 0 {
		return 0, 0, false
	}
	inv := vp.Inv()

	ndcX := 2*sx/c.ViewportW - 1
	ndcY := 1 - 2*sy/c.ViewportH
	far := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, 1, 1})
	if far[3] == 0 {
		return 0, 0, false
	}
	target := far.Vec3().Mul(1 / far[3])

	dir := target.Sub(c.Position)
	if absf(dir[2]) < 1e-9 {
		return 0, 0, false
	}
	t := -c.Position[2] / dir[2]
	if t < 0 || math.IsInf(float64(t), 0) || math.IsNaN(float64(t)) {
		return 0, 0, false
	}
	hit := c.Position.Add(dir.Mul(t))
	return hit[0], hit[1], true
}

// WorldToScreen projects a point on the z = 0 plane to screen pixels
// (origin top-left). ok is false for points behind the eye.
func (c *Camera) WorldToScreen(wx, wy float32) (sx, sy float32, ok bool) {
	clip := c.Projection().Mul4(c.View()).Mul4x1(mgl32.Vec4{wx, wy, 0, 1})
	if clip[3] <= 0 {
		return 0, 0, false
	}
	ndcX := clip[0] / clip[3]
	ndcY := clip[1] / clip[3]
	sx = (ndcX + 1) * 0.5 * c.ViewportW
	sy = (1 - ndcY) * 0.5 * c.ViewportH
	return sx, sy, true
}

// VisibleWorldBounds returns the region of the z = 0 plane on screen.
func (c *Camera) VisibleWorldBounds() (minX, minY, maxX, maxY float32) {
	halfH := c.Position[2] * float32(math.Tan(float64(mgl32.DegToRad(c.Zoom))/2))
	halfW := halfH * c.aspect()
	return c.Position[0] - halfW, c.Position[1] - halfH, c.Position[0] + halfW, c.Position[1] + halfH
}

// absf returns the absolute value of a float32.
func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// clamp restricts a value to a range.
func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
