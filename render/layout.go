package render

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/irishsmurf/go-mmo-client/camera"
	"github.com/irishsmurf/go-mmo-client/protocol"
)

const (
	// AvatarBox is the square every avatar frame is fitted into, in world units.
	AvatarBox = 48
	// CullMargin lets avatars straddling the viewport edge still be drawn.
	CullMargin = 50
	// labelPad is the padding around a username label.
	labelPad = 3
	// labelGap separates the label from the top of the avatar.
	labelGap = 2
)

// Rect is a float rectangle in screen coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Visible reports whether a screen position is inside the viewport widened by CullMargin.
func Visible(sx, sy float64, viewport camera.Size) bool {
	return sx >= -CullMargin && sx <= viewport.W+CullMargin &&
		sy >= -CullMargin && sy <= viewport.H+CullMargin
}

// FrameRef resolves the image reference for a player's current frame. The facing falls back to
// south; ok is false when the avatar has no frame at the player's animation index.
func FrameRef(avatar protocol.Avatar, p protocol.Player) (ref string, ok bool) {
	frames := avatar.FramesFor(p.Facing)
	if p.AnimationFrame < 0 || p.AnimationFrame >= len(frames) {
		return "", false
	}
	ref = frames[p.AnimationFrame]
	return ref, ref != ""
}

// AvatarRect places an image of size w x h at screen position (sx, sy): scaled to fit the
// avatar box with its aspect ratio kept, anchored at its bottom centre.
func AvatarRect(sx, sy float64, w, h int) (Rect, float64) {
	if w <= 0 || h <= 0 {
		return Rect{X: sx, Y: sy}, 0
	}
	scale := min(AvatarBox/float64(w), AvatarBox/float64(h))
	dw, dh := float64(w)*scale, float64(h)*scale
	return Rect{X: sx - dw/2, Y: sy - dh, W: dw, H: dh}, scale
}

// LabelRect is the backing rectangle for a label of the given text size, centred on cx and
// sitting just above top.
func LabelRect(cx, top, textW, textH float64) Rect {
	w := textW + 2*labelPad
	h := textH + 2*labelPad
	return Rect{X: cx - w/2, Y: top - labelGap - h, W: w, H: h}
}

// BackgroundRect is the part of the background image covered by the viewport, and the screen
// position to draw it at. The source is snapped outwards to whole pixels; the position carries
// the fractional camera offset so the background lines up with avatars.
func BackgroundRect(cam camera.Camera, viewport camera.Size, bounds image.Rectangle) (src image.Rectangle, dx, dy float64) {
	r := image.Rect(
		int(math.Floor(cam.X)), int(math.Floor(cam.Y)),
		int(math.Ceil(cam.X+viewport.W)), int(math.Ceil(cam.Y+viewport.H)),
	)
	src = r.Add(bounds.Min).Intersect(bounds)
	dx = float64(src.Min.X-bounds.Min.X) - cam.X
	dy = float64(src.Min.Y-bounds.Min.Y) - cam.Y
	return src, dx, dy
}

// DebugLine is the text of the F3 overlay.
func DebugLine(fps float64, received uint64, uptime time.Duration, players, avatars int, world camera.Size) string {
	up := "-"
	if uptime > 0 {
		up = durafmt.Parse(uptime.Truncate(time.Second)).LimitFirstN(2).String()
	}
	return fmt.Sprintf("FPS %.0f | received %s | connected %s | players %d | avatars %d | world %.0fx%.0f",
		fps, humanize.Bytes(received), up, players, avatars, world.W, world.H)
}
