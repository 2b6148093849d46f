package dedup

import (
	"fmt"
	"image"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"
)

const hashSize = 32

// RiderHash fingerprints a rider crop. The crop is reduced to a blurred
// 32x32 grayscale thumbnail so small pixel noise between frames maps to the
// same digest. A non-blank plate is folded into the hash.
func RiderHash(crop image.Image, plate string) string {
	thumb := imaging.Grayscale(crop)
	thumb = imaging.Resize(thumb, hashSize, hashSize, imaging.Box)
	thumb = imaging.Blur(thumb, 1.0)

	h := fmt.Sprintf("%016x", xxhash.Sum64(thumb.Pix))
	if plate = strings.TrimSpace(plate); plate != "" {
		h = fmt.Sprintf("%016x", xxhash.Sum64String(h+"_"+plate))
	}
	return h
}
