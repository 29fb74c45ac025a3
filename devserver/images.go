package devserver

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/irishsmurf/go-mmo-client/protocol"
)

const (
	avatarW    = 32
	avatarH    = 48
	gridStep   = 100
	avatarStep = 2 // frames per facing
)

var (
	grass    = color.RGBA{R: 42, G: 157, B: 143, A: 255}
	gridLine = color.RGBA{R: 33, G: 125, B: 114, A: 255}
	marker   = color.RGBA{R: 233, G: 196, B: 106, A: 255}

	avatarColors = map[string]color.RGBA{
		"blue":   {R: 33, G: 158, B: 188, A: 255},
		"red":    {R: 231, G: 111, B: 81, A: 255},
		"yellow": {R: 244, G: 162, B: 97, A: 255},
	}
)

// GenerateAvatars builds one avatar per colour with inline data: URI frames for every facing.
// A darker band marks the side the avatar faces; the second frame is shifted a pixel.
func GenerateAvatars() map[string]protocol.Avatar {
	avatars := make(map[string]protocol.Avatar, len(avatarColors))
	for name, c := range avatarColors {
		a := protocol.Avatar{Name: name, Frames: make(map[protocol.Facing][]string)}
		for _, f := range []protocol.Facing{protocol.FacingNorth, protocol.FacingSouth, protocol.FacingEast, protocol.FacingWest} {
			for i := 0; i < avatarStep; i++ {
				a.Frames[f] = append(a.Frames[f], dataURI(avatarFrame(c, f, i)))
			}
		}
		avatars[name] = a
	}
	return avatars
}

func avatarFrame(c color.RGBA, f protocol.Facing, frame int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, avatarW, avatarH))
	body := image.Rect(4, 8+frame, avatarW-4, avatarH)
	draw.Draw(img, body, &image.Uniform{C: c}, image.Point{}, draw.Src)

	dark := color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: 255}
	var band image.Rectangle
	switch f {
	case protocol.FacingNorth:
		band = image.Rect(4, 8+frame, avatarW-4, 14+frame)
	case protocol.FacingSouth:
		band = image.Rect(4, avatarH-6, avatarW-4, avatarH)
	case protocol.FacingEast:
		band = image.Rect(avatarW-10, 8+frame, avatarW-4, avatarH)
	case protocol.FacingWest:
		band = image.Rect(4, 8+frame, 10, avatarH)
	}
	draw.Draw(img, band, &image.Uniform{C: dark}, image.Point{}, draw.Src)
	return img
}

func dataURI(img image.Image) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory RGBA image cannot fail.
		panic(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// WorldImage renders a w x h PNG with grid lines every 100 units and markers at the corners.
func WorldImage(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: grass}, image.Point{}, draw.Src)
	for x := 0; x < w; x += gridStep {
		draw.Draw(img, image.Rect(x, 0, x+2, h), &image.Uniform{C: gridLine}, image.Point{}, draw.Src)
	}
	for y := 0; y < h; y += gridStep {
		draw.Draw(img, image.Rect(0, y, w, y+2), &image.Uniform{C: gridLine}, image.Point{}, draw.Src)
	}
	for _, p := range []image.Point{{0, 0}, {w - 20, 0}, {0, h - 20}, {w - 20, h - 20}} {
		draw.Draw(img, image.Rect(p.X, p.Y, p.X+20, p.Y+20), &image.Uniform{C: marker}, image.Point{}, draw.Src)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
