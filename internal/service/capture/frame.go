package capture

import (
	"image"
	"time"
)

// Frame is one decoded camera image. A frame has a single owner at a time:
// the Source until Put, the Pipeline after Get.
type Frame struct {
	Image     image.Image
	Index     uint64
	Timestamp time.Time
}
