package game

import rl "github.com/gen2brain/raylib-go/raylib"

// handleInput processes keyboard and mouse input.
func (g *Game) handleInput() {
	// Window resize propagation
	g.handleResize()

	// Fullscreen toggle
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}

	if rl.IsKeyPressed(rl.KeyP) {
		g.paused = !g.paused
	}
	if rl.IsKeyPressed(rl.KeyTab) {
		g.controls.Toggle()
	}
	if rl.IsKeyPressed(rl.KeyF3) {
		g.showPerf = !g.showPerf
	}

	g.handleCameraInput()

	// The gravity point follows the cursor unless it is over the panel.
	mouse := rl.GetMousePosition()
	if g.controls.Contains(mouse.X, mouse.Y) {
		return
	}
	if wx, wy, ok := g.camera.ScreenToWorld(mouse.X, mouse.Y); ok {
		g.sim.SetGravityPoint(wx, wy)
	}
}

// handleResize checks for window resize and propagates new dimensions.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w := float32(rl.GetScreenWidth())
	h := float32(rl.GetScreenHeight())
	if w == g.screenWidth && h == g.screenHeight {
		return
	}
	g.screenWidth = w
	g.screenHeight = h

	g.camera.Resize(w, h)
	g.backdrop.Resize(int32(w), int32(h))
	g.pipe.resize(w, h)
	g.perfPanel.SetPosition(int32(w)-340, 160)
	g.loadFrames()
}

// handleCameraInput processes camera pan/zoom controls.
func (g *Game) handleCameraInput() {
	// Middle-drag pans
	if rl.IsMouseButtonDown(rl.MouseButtonMiddle) {
		d := rl.GetMouseDelta()
		g.camera.Pan(d.X, d.Y)
	}

	// Arrow key panning, in drag pixels per frame
	const keyPan = 8
	if rl.IsKeyDown(rl.KeyRight) {
		g.camera.Pan(-keyPan, 0)
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		g.camera.Pan(keyPan, 0)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		g.camera.Pan(0, -keyPan)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		g.camera.Pan(0, keyPan)
	}

	mouse := rl.GetMousePosition()
	if wheel := rl.GetMouseWheelMove(); wheel != 0 && !g.controls.Contains(mouse.X, mouse.Y) {
		g.camera.Scroll(wheel)
	}

	// Keyboard zoom with +/- (= and - keys)
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		g.camera.Scroll(2)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		g.camera.Scroll(-2)
	}

	if rl.IsKeyPressed(rl.KeySpace) || rl.IsKeyPressed(rl.KeyHome) {
		g.camera.Reset()
	}
}
