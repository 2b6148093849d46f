package capture

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// ErrTransientCapture marks a failed read the Source retries after a short delay.
var ErrTransientCapture = errors.New("transient capture failure")

// Camera yields decoded frames from a video feed.
type Camera interface {
	Read() (image.Image, error)
	Close() error
}

// OpenCamera picks the camera implementation for url. udp://:port listens
// for JPEG datagrams, anything else is handed to OpenCV.
func OpenCamera(url string) (Camera, error) {
	if addr, ok := strings.CutPrefix(url, "udp://"); ok {
		return NewUDPCamera(addr)
	}
	return NewGocvCamera(url)
}

// GocvCamera reads frames from any source OpenCV's VideoCapture understands
// (device index, file, http/rtsp stream). Close never waits for a read in
// flight: the reader releases the capture once it returns.
type GocvCamera struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	reading bool
	closed  bool
}

func NewGocvCamera(url string) (*GocvCamera, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %s: %w", url, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture %s is not opened", url)
	}
	return &GocvCamera{capture: vc, mat: gocv.NewMat()}, nil
}

func (c *GocvCamera) Read() (image.Image, error) {
	c.mu.Lock()
	if c.closed || c.reading {
		c.mu.Unlock()
		return nil, fmt.Errorf("camera closed: %w", ErrTransientCapture)
	}
	c.reading = true
	c.mu.Unlock()

	ok := c.capture.Read(&c.mat)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = false
	if c.closed {
		c.release()
		return nil, fmt.Errorf("camera closed: %w", ErrTransientCapture)
	}
	if !ok || c.mat.Empty() {
		return nil, ErrTransientCapture
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %v: %w", err, ErrTransientCapture)
	}
	return img, nil
}

// Close marks the camera closed. With a read in flight the capture is
// released by that read when it returns.
func (c *GocvCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.reading {
		return nil
	}
	return c.release()
}

func (c *GocvCamera) release() error {
	c.mat.Close()
	return c.capture.Close()
}
