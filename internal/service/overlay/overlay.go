// Package overlay draws detection boxes and labels onto RGBA frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
	Gray  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

var face = basicfont.Face7x13

// ToRGBA returns a drawable copy of img with origin kept.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// DrawBox outlines r with the given stroke thickness, clipped to dst.
func DrawBox(dst *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// DrawLabel writes text with its baseline at pt on a dark backing strip.
func DrawLabel(dst *image.RGBA, pt image.Point, text string, c color.Color) {
	width := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	bg := image.Rect(pt.X, pt.Y-metrics.Ascent.Ceil(), pt.X+width, pt.Y+metrics.Descent.Ceil())
	draw.Draw(dst, bg.Intersect(dst.Bounds()), image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(text)
}
