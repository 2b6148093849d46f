// Package geometry holds the box arithmetic shared by rider pairing,
// tracking and duplicate suppression. Boxes are image.Rectangle in pixel
// coordinates with exclusive Max, the same convention the detectors use.
package geometry

import (
	"image"
	"math"
)

// Area returns the box area, 0 for empty or inverted boxes.
func Area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

// IOU returns the intersection-over-union of two boxes, 0 when the union is empty.
func IOU(a, b image.Rectangle) float64 {
	inter := Area(a.Intersect(b))
	union := Area(a) + Area(b) - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Union returns the smallest box covering both boxes.
func Union(a, b image.Rectangle) image.Rectangle {
	return image.Rect(
		min(a.Min.X, b.Min.X),
		min(a.Min.Y, b.Min.Y),
		max(a.Max.X, b.Max.X),
		max(a.Max.Y, b.Max.Y),
	)
}

// Center returns the box center in floating point.
func Center(r image.Rectangle) (float64, float64) {
	return float64(r.Min.X+r.Max.X) / 2, float64(r.Min.Y+r.Max.Y) / 2
}

// Distance is the euclidean distance between two points.
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// Scale maps a box by independent x and y factors, rounding each coordinate.
func Scale(r image.Rectangle, sx, sy float64) image.Rectangle {
	return image.Rect(
		int(math.Round(float64(r.Min.X)*sx)),
		int(math.Round(float64(r.Min.Y)*sy)),
		int(math.Round(float64(r.Max.X)*sx)),
		int(math.Round(float64(r.Max.Y)*sy)),
	)
}
