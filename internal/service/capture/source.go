package capture

import (
	"context"
	"time"

	"sras/internal/clock"
	"sras/internal/logger"
	"sras/internal/metrics"
)

// Source pulls frames from a Camera as fast as it delivers them and hands
// each one to the Queue, stamped with a monotonic index and capture time.
type Source struct {
	camera     Camera
	queue      *Queue
	clock      clock.Clock
	retryDelay time.Duration
	logger     *logger.Logger
	metrics    *metrics.Metrics
	next       uint64
}

func NewSource(camera Camera, queue *Queue, clk clock.Clock, retryDelay time.Duration, logger *logger.Logger, m *metrics.Metrics) *Source {
	return &Source{
		camera:     camera,
		queue:      queue,
		clock:      clk,
		retryDelay: retryDelay,
		logger:     logger,
		metrics:    m,
	}
}

// Run loops until ctx is done. Read failures are never fatal.
func (s *Source) Run(ctx context.Context) {
	s.logger.Info("Frame source started")
	defer s.logger.Info("Frame source stopped")

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		img, err := s.camera.Read()
		if err != nil {
			s.metrics.CaptureErrors.Add(1)
			failures++
			if failures == 1 || failures%500 == 0 {
				s.logger.Warning("Camera read failed (%d in a row): %v", failures, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}
		failures = 0

		before := s.queue.Dropped()
		s.queue.Put(Frame{Image: img, Index: s.next, Timestamp: s.clock.Now()})
		s.next++

		s.metrics.FramesCaptured.Add(1)
		s.metrics.FramesDropped.Add(s.queue.Dropped() - before)
	}
}
