package dto

import "time"

// BufferedViolation holds encoded evidence waiting to be flushed to the archive directory.
type BufferedViolation struct {
	Ref        string
	Camera     string
	Plate      string
	Timestamp  time.Time
	Image      []byte
	PlateImage []byte
}
