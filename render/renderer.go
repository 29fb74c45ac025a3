// Package render draws a session onto an ebiten screen: the background, every visible avatar
// with its username label, and the HUD.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stlog "log/slog"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/irishsmurf/go-mmo-client/assets"
	"github.com/irishsmurf/go-mmo-client/metrics"
	"github.com/irishsmurf/go-mmo-client/protocol"
	"github.com/irishsmurf/go-mmo-client/session"
)

var (
	clearColor   = color.RGBA{R: 24, G: 28, B: 36, A: 255}
	labelBgColor = color.RGBA{A: 150}
	labelFgColor = color.White
)

// Frames is the decoded image cache the renderer reads from.
type Frames = assets.Cache[*ebiten.Image]

// Renderer draws frames. It is used only from ebiten's Draw and Update callbacks.
type Renderer struct {
	frames     *Frames
	background string
	worldKnown bool

	labelFace *text.GoTextFace
	hudFace   *text.GoTextFace
	logger    *stlog.Logger

	// ShowDebug toggles the FPS/traffic line.
	ShowDebug bool
}

// NewFrames creates the image cache used by the renderer.
func NewFrames(fetcher assets.Fetcher, workers int, logger *stlog.Logger) *Frames {
	return assets.NewCache(fetcher, workers, func(img image.Image) *ebiten.Image {
		return ebiten.NewImageFromImage(img)
	}, logger)
}

// New builds a renderer drawing the background image named by backgroundRef.
func New(frames *Frames, backgroundRef string, logger *stlog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = stlog.Default()
	}
	src, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	return &Renderer{
		frames:     frames,
		background: backgroundRef,
		labelFace:  &text.GoTextFace{Source: src, Size: 12},
		hudFace:    &text.GoTextFace{Source: src, Size: 14},
		logger:     logger.With("component", "render"),
	}, nil
}

// Sync is called once per tick after the cache was drained. It requests the background and,
// once decoded, hands its size to the session as the world bounds.
func (r *Renderer) Sync(s *session.Session) {
	if r.worldKnown || r.background == "" {
		return
	}
	if _, st := r.frames.Get(r.background); st != assets.Ready {
		return
	}
	b, _ := r.frames.Bounds(r.background)
	r.worldKnown = true
	r.logger.Info("World image loaded", "ref", r.background, "width", b.Dx(), "height", b.Dy())
	s.SetWorldSize(float64(b.Dx()), float64(b.Dy()))
}

// Draw runs one full draw pass.
func (r *Renderer) Draw(screen *ebiten.Image, s *session.Session) {
	screen.Fill(clearColor)
	r.drawBackground(screen, s)

	culled := 0
	cam := s.Camera()
	viewport := s.Viewport()
	store := s.Store()
	store.Each(func(p protocol.Player) {
		sx, sy := cam.ToScreen(p.X, p.Y)
		if !Visible(sx, sy, viewport) {
			culled++
			return
		}
		avatar, ok := store.Avatar(p.Avatar)
		if !ok {
			return
		}
		ref, ok := FrameRef(avatar, p)
		if !ok {
			return
		}
		img, st := r.frames.Get(ref)
		if st != assets.Ready {
			return
		}
		b := img.Bounds()
		rect, scale := AvatarRect(sx, sy, b.Dx(), b.Dy())
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(rect.X, rect.Y)
		op.Filter = ebiten.FilterLinear
		screen.DrawImage(img, op)

		r.drawLabel(screen, p.Username, sx, rect.Y)
	})
	metrics.CulledPlayers.Add(float64(culled))

	r.drawHUD(screen, s)
}

func (r *Renderer) drawBackground(screen *ebiten.Image, s *session.Session) {
	bg, st := r.frames.Get(r.background)
	if st != assets.Ready {
		return
	}
	src, dx, dy := BackgroundRect(s.Camera(), s.Viewport(), bg.Bounds())
	if src.Empty() {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(dx, dy)
	screen.DrawImage(bg.SubImage(src).(*ebiten.Image), op)
}

func (r *Renderer) drawLabel(screen *ebiten.Image, name string, cx, top float64) {
	if name == "" {
		return
	}
	tw, th := text.Measure(name, r.labelFace, 0)
	rect := LabelRect(cx, top, tw, th)
	fillRect(screen, rect, labelBgColor)

	op := &text.DrawOptions{}
	op.GeoM.Translate(rect.X+labelPad, rect.Y+labelPad)
	op.ColorScale.ScaleWithColor(labelFgColor)
	text.Draw(screen, name, r.labelFace, op)
}

func fillRect(dst *ebiten.Image, r Rect, clr color.Color) {
	vector.DrawFilledRect(dst, float32(r.X), float32(r.Y), float32(r.W), float32(r.H), clr, false)
}
