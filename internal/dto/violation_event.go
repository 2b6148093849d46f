package dto

import (
	"encoding/json"
	"time"
)

// ViolationEvent is pushed to event feed subscribers for every stored violation.
type ViolationEvent struct {
	ID        int64     `json:"id"`
	Ref       string    `json:"ref"`
	Camera    string    `json:"camera"`
	Plate     string    `json:"plate,omitempty"`
	SpeedKPH  float64   `json:"speedKph"`
	HasPlate  bool      `json:"hasPlateImage"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON formats the timestamp as date and time-of-day like the review UI expects.
func (e ViolationEvent) MarshalJSON() ([]byte, error) {
	type Alias ViolationEvent
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      e.Timestamp.Format("02-01-2006"),
		TimeOfDay: e.Timestamp.Format("15:04:05"),
		Alias:     (Alias)(e),
	})
}
