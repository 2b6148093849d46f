package pipeline

import (
	"image"
	"strings"

	"sras/internal/dto"
	"sras/internal/geometry"
)

// PairRiders pairs every person with the first vehicle, in detection order,
// overlapping it by more than threshold IOU. Each pair yields the union box.
// Persons without a vehicle are dropped; a vehicle may serve several persons.
func PairRiders(dets []dto.Detection, personLabels, vehicleLabels []string, threshold float64) []image.Rectangle {
	var persons, vehicles []image.Rectangle
	for _, d := range dets {
		switch {
		case matchLabel(d.Label, personLabels):
			persons = append(persons, d.Box)
		case matchLabel(d.Label, vehicleLabels):
			vehicles = append(vehicles, d.Box)
		}
	}

	var riders []image.Rectangle
	for _, p := range persons {
		for _, v := range vehicles {
			if geometry.IOU(p, v) > threshold {
				riders = append(riders, geometry.Union(p, v))
				break
			}
		}
	}
	return riders
}

func matchLabel(label string, labels []string) bool {
	for _, l := range labels {
		if strings.EqualFold(label, l) {
			return true
		}
	}
	return false
}

// riderFindings is what the violation model saw inside one rider crop.
type riderFindings struct {
	noHelmet  bool
	plateText string
	plateBox  image.Rectangle
}

const (
	minPlateWidth  = 12
	minPlateHeight = 8
)

// classify folds the sub-detections of a rider crop. The last plate label
// sets the text; the plate box is the largest valid one, first wins ties.
func classify(subs []dto.Detection, cropBounds image.Rectangle) riderFindings {
	var f riderFindings
	bestArea := 0

	for _, d := range subs {
		label := strings.ToLower(d.Label)
		switch {
		case strings.Contains(label, "no helmet"):
			f.noHelmet = true
		case strings.Contains(label, "helmet"):
		case strings.Contains(label, "plate"):
			f.plateText = PlateText(d.Label)

			box := d.Box.Intersect(cropBounds)
			if box.Dx() < minPlateWidth || box.Dy() < minPlateHeight {
				continue
			}
			if area := geometry.Area(box); area > bestArea {
				bestArea = area
				f.plateBox = box
			}
		}
	}
	return f
}

// PlateText extracts the plate number from a "plate_<text>" label.
func PlateText(label string) string {
	text := strings.ReplaceAll(label, "plate_", "")
	return strings.ReplaceAll(text, "_", "")
}
