package dto

import (
	"image"
	"time"
)

// ViolationCandidate carries the evidence of one no-helmet rider from the
// pipeline to the emitter. PlateCrop is nil when no plate qualified.
type ViolationCandidate struct {
	RiderCrop image.Image
	Annotated image.Image
	PlateText string
	PlateCrop image.Image
	SpeedKPH  float64
	RiderHash string
	Box       image.Rectangle
	Frame     int
	Timestamp time.Time
}
