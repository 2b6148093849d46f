package service

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"sras/internal/clock"
	"sras/internal/config"
	"sras/internal/logger"
	"sras/internal/metrics"
	"sras/internal/model"
	"sras/internal/repository"
	"sras/internal/service/capture"
	"sras/internal/service/dedup"
	"sras/internal/service/emitter"
	"sras/internal/service/pipeline"
	"sras/internal/service/storage"
	"sras/internal/service/stream"
	"sras/internal/service/tracker"
	"sras/internal/service/websocket"
)

// Manager owns the capture and detection workers and the services fed by them.
type Manager struct {
	camera     capture.Camera
	source     *capture.Source
	pipeline   *pipeline.Pipeline
	latest     *pipeline.LatestFrame
	hub        *websocket.HubService
	archive    *storage.ArchiveService
	publisher  *stream.Publisher
	violations repository.ViolationRepository
	metrics    *metrics.Metrics
	logger     *logger.Logger

	shutdownTimeout time.Duration
	cancel          context.CancelFunc
	stopped         bool
	workers         sync.WaitGroup // source and pipeline
	background      sync.WaitGroup // hub and archive
	mu              sync.Mutex
}

// NewManager builds the full pipeline for one camera. The archive is only
// created when cfg.ArchiveDirectory is set.
func NewManager(cfg *config.Config, camera capture.Camera, general, violation pipeline.Detector,
	violations repository.ViolationRepository, cam *model.Camera, clk clock.Clock, logger *logger.Logger, m *metrics.Metrics) (*Manager, error) {
	latest := &pipeline.LatestFrame{}
	queue := capture.NewQueue()

	hub := websocket.NewHubService(logger, m)
	notifiers := []emitter.Notifier{hub}

	var archive *storage.ArchiveService
	if cfg.ArchiveDirectory != "" {
		archive = storage.NewArchiveService(cfg.ArchiveDirectory, cfg.ArchiveBufferLimit, cfg.ArchiveFlushInterval, logger)
		notifiers = append(notifiers, archive)
	}

	publisher, err := stream.NewPublisher(latest, cfg.FrameInterval(), cfg.JPEGQuality, logger, m)
	if err != nil {
		return nil, err
	}

	tr := tracker.New(tracker.Options{
		PixelsPerMeter: cfg.PixelsPerMeter,
		MaxStaleFrames: cfg.TrackMaxStaleFrames,
		MaxDistance:    cfg.TrackMaxDistance,
		Window:         cfg.SpeedWindow,
	})

	suppressor := dedup.NewSuppressor(dedup.Options{
		IOUThreshold:  cfg.DedupIOU,
		FrameWindow:   cfg.DedupFrameWindow,
		RingSize:      cfg.DedupRingSize,
		TimeWindow:    cfg.DedupTimeWindow,
		Retention:     cfg.HashRetention,
		SweepInterval: cfg.SweepInterval,
	}, violations, clk, logger, m)

	em := emitter.New(violations, emitter.Options{
		CameraID:         cam.ID,
		CameraName:       cam.Name,
		JPEGQuality:      cfg.JPEGQuality,
		PlateJPEGQuality: cfg.PlateJPEGQuality,
	}, logger, m, notifiers...)

	p := pipeline.New(pipeline.Options{
		DetectionSize: image.Pt(cfg.DetectionWidth, cfg.DetectionHeight),
		Confidence:    cfg.DetectionConfidence,
		PairIOU:       cfg.PairIOU,
		MinSpeedKPH:   cfg.MinSpeedKPH,
		SkipInference: cfg.SkipInference,
		QueueTimeout:  cfg.QueueTimeout,
	}, queue, general, violation, tr, suppressor, em, latest, logger, m)

	return &Manager{
		camera:          camera,
		source:          capture.NewSource(camera, queue, clk, cfg.CaptureRetryDelay, logger, m),
		pipeline:        p,
		latest:          latest,
		hub:             hub,
		archive:         archive,
		publisher:       publisher,
		violations:      violations,
		metrics:         m,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// Start launches every worker. It returns an error when already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("manager already started")
	}
	ctx, m.cancel = context.WithCancel(ctx)

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		m.hub.Run(ctx)
	}()
	if m.archive != nil {
		m.background.Add(1)
		go func() {
			defer m.background.Done()
			m.archive.Run(ctx)
		}()
	}

	m.workers.Add(2)
	go func() {
		defer m.workers.Done()
		m.source.Run(ctx)
	}()
	go func() {
		defer m.workers.Done()
		m.pipeline.Run(ctx)
	}()

	m.logger.Info("🎬 Manager started")
	return nil
}

// Stop cancels the workers, waits up to the shutdown timeout for them and
// then releases the camera, which unblocks a source stuck in a read.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	if cancel == nil || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	cancel()

	if !waitTimeout(&m.workers, m.shutdownTimeout) {
		m.logger.Warning("Workers did not stop within %s", m.shutdownTimeout)
	}
	if !m.closeCamera() {
		m.logger.Warning("Camera did not close within %s", m.shutdownTimeout)
	}
	if !waitTimeout(&m.background, m.shutdownTimeout) {
		m.logger.Warning("Background services did not stop within %s", m.shutdownTimeout)
	}
	m.logger.Info("🛑 Manager stopped")
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.hub
}

func (m *Manager) GetPublisher() *stream.Publisher {
	return m.publisher
}

func (m *Manager) GetLatestFrame() *pipeline.LatestFrame {
	return m.latest
}

func (m *Manager) GetViolationRepository() repository.ViolationRepository {
	return m.violations
}

func (m *Manager) GetMetrics() *metrics.Metrics {
	return m.metrics
}

// closeCamera releases the camera without letting a hung driver block
// shutdown past the timeout.
func (m *Manager) closeCamera() bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.camera.Close(); err != nil {
			m.logger.Error("Failed to close camera: %v", err)
		}
	}()
	select {
	case <-done:
		return true
	case <-time.After(m.shutdownTimeout):
		return false
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
