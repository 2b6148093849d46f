package dto

import "image"

// Detection is one labeled box produced by a detector for a single image.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}
