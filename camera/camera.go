// Package camera computes the visible world rectangle.
package camera

// Size is a width/height pair in world units.
type Size struct {
	W, H float64
}

// Camera is the top-left world coordinate of the viewport.
type Camera struct {
	X, Y float64
}

// Follow centres the viewport on (px, py), clamped so it never leaves the world.
// When the world is smaller than the viewport on an axis the camera sits at 0 on that axis.
func Follow(px, py float64, viewport, world Size) Camera {
	return Camera{
		X: clampAxis(px-viewport.W/2, viewport.W, world.W),
		Y: clampAxis(py-viewport.H/2, viewport.H, world.H),
	}
}

func clampAxis(v, view, world float64) float64 {
	limit := world - view
	if limit < 0 {
		limit = 0
	}
	if v > limit {
		v = limit
	}
	if v < 0 {
		v = 0
	}
	return v
}

// ToScreen converts a world position to viewport coordinates.
func (c Camera) ToScreen(wx, wy float64) (float64, float64) {
	return wx - c.X, wy - c.Y
}
