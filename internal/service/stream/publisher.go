// Package stream serves the latest annotated frame as an MJPEG stream.
package stream

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"sras/internal/logger"
	"sras/internal/metrics"
)

// FrameSource yields a copy of the newest frame, ok is false when none exists yet.
type FrameSource interface {
	Snapshot() (image.Image, bool)
}

type Publisher struct {
	frames   FrameSource
	interval time.Duration
	quality  int
	blank    []byte
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewPublisher paces every client to one part per interval.
func NewPublisher(frames FrameSource, interval time.Duration, quality int, logger *logger.Logger, m *metrics.Metrics) (*Publisher, error) {
	blank, err := encode(image.NewRGBA(image.Rect(0, 0, 640, 480)), quality)
	if err != nil {
		return nil, fmt.Errorf("failed to render placeholder frame: %w", err)
	}
	return &Publisher{
		frames:   frames,
		interval: interval,
		quality:  quality,
		blank:    blank,
		logger:   logger,
		metrics:  m,
	}, nil
}

// ServeHTTP streams until the client goes away.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	p.metrics.StreamClients.Add(1)
	defer p.metrics.StreamClients.Add(-1)
	p.logger.Info("Stream client connected: %s", r.RemoteAddr)
	defer p.logger.Info("Stream client disconnected: %s", r.RemoteAddr)

	ctx := r.Context()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		data := p.blank
		if img, ok := p.frames.Snapshot(); ok {
			encoded, err := encode(img, p.quality)
			if err != nil {
				p.logger.Error("Failed to encode stream frame: %v", err)
			} else {
				data = encoded
			}
		}

		if err := writePart(w, data); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
