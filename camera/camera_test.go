package camera

import (
	"math"
	"testing"
)

func approx(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestNew(t *testing.T) {
	cam := New(1280, 720, Options{})

	if cam.Position[0] != 0 || cam.Position[1] != 0 || cam.Position[2] != 5 {
		t.Errorf("expected camera at (0, 0, 5), got %v", cam.Position)
	}
	if cam.Zoom != 45 || cam.TargetZoom != 45 {
		t.Errorf("expected zoom 45, got %f/%f", cam.Zoom, cam.TargetZoom)
	}
}

func TestScreenCenterHitsCameraAxis(t *testing.T) {
	cam := New(1280, 720, Options{})
	cam.Position[0], cam.Position[1] = 3, -2

	wx, wy, ok := cam.ScreenToWorld(640, 360)
	if !ok {
		t.Fatal("center ray missed the plane")
	}
	if !approx(wx, 3, 1e-4) || !approx(wy, -2, 1e-4) {
		t.Errorf("expected (3, -2), got (%f, %f)", wx, wy)
	}
}

func TestScreenToWorldRoundtrip(t *testing.T) {
	cam := New(1280, 720, Options{})

	testCases := []struct{ sx, sy float32 }{
		{640, 360},  // center
		{100, 100},  // top-left
		{1200, 600}, // near bottom-right
	}

	for _, tc := range testCases {
		wx, wy, ok := cam.ScreenToWorld(tc.sx, tc.sy)
		if !ok {
			t.Fatalf("(%f,%f) missed the plane", tc.sx, tc.sy)
		}
		sx, sy, ok := cam.WorldToScreen(wx, wy)
		if !ok {
			t.Fatalf("(%f,%f) projected behind the eye", wx, wy)
		}
		if !approx(sx, tc.sx, 0.05) || !approx(sy, tc.sy, 0.05) {
			t.Errorf("roundtrip failed: (%f,%f) -> (%f,%f) -> (%f,%f)",
				tc.sx, tc.sy, wx, wy, sx, sy)
		}
	}
}

func TestScreenYPointsDown(t *testing.T) {
	cam := New(800, 600, Options{})
	_, top, _ := cam.ScreenToWorld(400, 0)
	_, bottom, _ := cam.ScreenToWorld(400, 600)
	if top <= bottom {
		t.Errorf("top of screen y=%f should be above bottom y=%f", top, bottom)
	}
}

func TestVisibleBoundsMatchCorners(t *testing.T) {
	cam := New(1280, 720, Options{})
	minX, minY, maxX, maxY := cam.VisibleWorldBounds()

	wx, wy, _ := cam.ScreenToWorld(0, 0)
	if !approx(wx, minX, 1e-3) || !approx(wy, maxY, 1e-3) {
		t.Errorf("top-left (%f,%f), bounds min x %f max y %f", wx, wy, minX, maxY)
	}
	wx, wy, _ = cam.ScreenToWorld(1280, 720)
	if !approx(wx, maxX, 1e-3) || !approx(wy, minY, 1e-3) {
		t.Errorf("bottom-right (%f,%f), bounds max x %f min y %f", wx, wy, maxX, minY)
	}
}

func TestPan(t *testing.T) {
	cam := New(1280, 720, Options{PanSpeed: 0.01})

	// Dragging right and down moves the eye left and up.
	cam.Pan(100, 50)
	if !approx(cam.Position[0], -1, 1e-6) || !approx(cam.Position[1], 0.5, 1e-6) {
		t.Errorf("expected (-1, 0.5), got %v", cam.Position)
	}
	if cam.Position[2] != 5 {
		t.Errorf("pan changed distance: %f", cam.Position[2])
	}
}

func TestScrollClamp(t *testing.T) {
	cam := New(1280, 720, Options{})

	for i := 0; i < 200; i++ {
		cam.Scroll(1)
	}
	if cam.TargetZoom != cam.MinZoom {
		t.Errorf("expected target clamped to %f, got %f", cam.MinZoom, cam.TargetZoom)
	}

	for i := 0; i < 200; i++ {
		cam.Scroll(-1)
	}
	if cam.TargetZoom != cam.MaxZoom {
		t.Errorf("expected target clamped to %f, got %f", cam.MaxZoom, cam.TargetZoom)
	}
}

func TestUpdateEasesZoom(t *testing.T) {
	cam := New(1280, 720, Options{})
	cam.Scroll(1) // 45 -> 40.5
	if !approx(cam.TargetZoom, 40.5, 1e-4) {
		t.Fatalf("target zoom %f", cam.TargetZoom)
	}
	if cam.Zoom != 45 {
		t.Fatalf("scroll moved zoom immediately: %f", cam.Zoom)
	}

	prev := cam.Zoom
	for i := 0; i < 10; i++ {
		cam.Update(1.0 / 60)
		if cam.Zoom >= prev || cam.Zoom < cam.TargetZoom {
			t.Fatalf("step %d: zoom %f not easing toward %f from %f", i, cam.Zoom, cam.TargetZoom, prev)
		}
		prev = cam.Zoom
	}
	for i := 0; i < 600; i++ {
		cam.Update(1.0 / 60)
	}
	if !approx(cam.Zoom, cam.TargetZoom, 1e-3) {
		t.Errorf("zoom %f did not settle at %f", cam.Zoom, cam.TargetZoom)
	}
}

func TestUpdateLargeStepDoesNotOvershoot(t *testing.T) {
	cam := New(1280, 720, Options{})
	cam.Scroll(1)
	cam.Update(10)
	if cam.Zoom != cam.TargetZoom {
		t.Errorf("expected snap to %f, got %f", cam.TargetZoom, cam.Zoom)
	}
}

func TestReset(t *testing.T) {
	cam := New(1280, 720, Options{})
	cam.Pan(300, 300)
	cam.Scroll(3)
	cam.Update(1)

	cam.Reset()

	if cam.Position != cam.home {
		t.Errorf("expected position %v, got %v", cam.home, cam.Position)
	}
	if cam.Zoom != 45 || cam.TargetZoom != 45 {
		t.Errorf("expected zoom 45, got %f/%f", cam.Zoom, cam.TargetZoom)
	}
}

func TestZeroViewport(t *testing.T) {
	cam := New(0, 0, Options{})
	if _, _, ok := cam.ScreenToWorld(1, 1); ok {
		t.Error("expected miss on empty viewport")
	}
}
