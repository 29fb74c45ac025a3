package render

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"

	"github.com/irishsmurf/go-mmo-client/session"
)

var (
	overlayColor   = color.RGBA{R: 10, G: 12, B: 16, A: 220}
	statusBgColor  = color.RGBA{R: 30, G: 34, B: 44, A: 200}
	statusErrColor = color.RGBA{R: 140, G: 30, B: 30, A: 220}
	hudTextColor   = color.RGBA{R: 235, G: 235, B: 235, A: 255}
)

const hudMargin = 8

func (r *Renderer) drawHUD(screen *ebiten.Image, s *session.Session) {
	vp := s.Viewport()

	if s.Loading() {
		fillRect(screen, Rect{W: vp.W, H: vp.H}, overlayColor)
		r.drawCentered(screen, "Loading world...", vp.W/2, vp.H/2)
	}

	if status, isErr := s.Status(); status != "" {
		tw, th := text.Measure(status, r.hudFace, 0)
		bg := Rect{X: vp.W/2 - tw/2 - 2*labelPad, Y: hudMargin, W: tw + 4*labelPad, H: th + 2*labelPad}
		clr := statusBgColor
		if isErr {
			clr = statusErrColor
		}
		fillRect(screen, bg, clr)
		r.drawText(screen, status, bg.X+2*labelPad, bg.Y+labelPad)
	}

	if info := s.Info(); info != "" {
		_, th := text.Measure(info, r.hudFace, 0)
		r.drawText(screen, info, hudMargin, vp.H-hudMargin-th)
	}

	if r.ShowDebug {
		line := DebugLine(ebiten.ActualFPS(), s.BytesReceived(), s.ConnectedFor(), s.Store().Count(), s.Store().AvatarCount(), s.WorldSize())
		tw, th := text.Measure(line, r.hudFace, 0)
		fillRect(screen, Rect{X: vp.W - tw - 2*hudMargin, Y: vp.H - th - 2*hudMargin, W: tw + 2*hudMargin, H: th + 2*hudMargin}, statusBgColor)
		r.drawText(screen, line, vp.W-tw-hudMargin, vp.H-th-hudMargin)
	}
}

func (r *Renderer) drawCentered(screen *ebiten.Image, msg string, cx, cy float64) {
	tw, th := text.Measure(msg, r.hudFace, 0)
	r.drawText(screen, msg, cx-tw/2, cy-th/2)
}

func (r *Renderer) drawText(screen *ebiten.Image, msg string, x, y float64) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(hudTextColor)
	text.Draw(screen, msg, r.hudFace, op)
}
