package model

import "time"

// Violation statuses of the human review workflow.
const (
	StatusPendingVerification = "pending_verification"
	StatusApproved            = "approved"
	StatusRejected            = "rejected"
)

// Violation represents a stored violation record.
type Violation struct {
	ID          int64     `json:"id"`
	Ref         string    `json:"ref"`
	CameraID    int64     `json:"camera_id"`
	Timestamp   time.Time `json:"timestamp"`
	PlateNumber string    `json:"plate_number,omitempty"`
	Image       []byte    `json:"-"`
	PlateImage  []byte    `json:"-"`
	RiderHash   string    `json:"rider_hash,omitempty"`
	SpeedKPH    float64   `json:"speed_kph"`
	Status      string    `json:"status"`
}

// ViolationStats contains statistics about stored violations.
type ViolationStats struct {
	Total      int            `json:"total"`
	PerStatus  map[string]int `json:"per_status"`
	PerCamera  map[string]int `json:"per_camera"`
	WithPlate  int            `json:"with_plate"`
	TotalBytes int64          `json:"total_bytes"`
}
