package pipeline

import (
	"image"
	"image/draw"
	"sync"
)

// LatestFrame holds the most recent annotated frame. One writer, many
// readers; both sides work on private copies.
type LatestFrame struct {
	mu  sync.Mutex
	img *image.RGBA
}

func (l *LatestFrame) Set(img image.Image) {
	cp := cloneRGBA(img)
	l.mu.Lock()
	l.img = cp
	l.mu.Unlock()
}

// Snapshot returns a copy of the latest frame, ok is false until the first Set.
func (l *LatestFrame) Snapshot() (image.Image, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.img == nil {
		return nil, false
	}
	return cloneRGBA(l.img), true
}

func cloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
