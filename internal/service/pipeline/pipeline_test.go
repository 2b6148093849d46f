package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"sras/internal/clock"
	"sras/internal/dto"
	"sras/internal/logger"
	"sras/internal/metrics"
	"sras/internal/model"
	"sras/internal/service/capture"
	"sras/internal/service/dedup"
	"sras/internal/service/emitter"
	"sras/internal/service/tracker"
)

var t0 = time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)

// ========================================
// Fakes
// ========================================

type detectorFunc func(img image.Image) ([]dto.Detection, error)

func (f detectorFunc) Detect(img image.Image, _ float64) ([]dto.Detection, error) {
	return f(img)
}

type hashStore struct{}

func (hashStore) ExistsRecent(context.Context, string, time.Time) (bool, error) { return false, nil }
func (hashStore) AgedHashes(context.Context, time.Time) ([]string, error)       { return nil, nil }

type violationStore struct {
	mu      sync.Mutex
	created []*model.Violation
}

func (s *violationStore) Create(_ context.Context, v *model.Violation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, v)
	return int64(len(s.created)), nil
}

func (s *violationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

// movingRider returns a person on a motorcycle in 640x360 detection space,
// shifted 5px right per call.
func movingRider() detectorFunc {
	var mu sync.Mutex
	k := 0
	return func(image.Image) ([]dto.Detection, error) {
		mu.Lock()
		defer mu.Unlock()
		dx := 5 * k
		k++
		return []dto.Detection{
			{Label: "person", Confidence: 0.9, Box: image.Rect(100+dx, 50, 140+dx, 150)},
			{Label: "motorcycle", Confidence: 0.8, Box: image.Rect(95+dx, 100, 150+dx, 180)},
		}, nil
	}
}

func noHelmetWithPlate() detectorFunc {
	return func(image.Image) ([]dto.Detection, error) {
		return []dto.Detection{
			{Label: "no helmet", Confidence: 0.9, Box: image.Rect(0, 0, 20, 20)},
			{Label: "plate_AB_1234", Confidence: 0.7, Box: image.Rect(10, 150, 60, 175)},
		}, nil
	}
}

type fixture struct {
	pipeline *Pipeline
	store    *violationStore
	latest   *LatestFrame
	metrics  *metrics.Metrics
}

func newFixture(general, violation Detector, minSpeed float64) *fixture {
	log := logger.NewWriterLogger(io.Discard)
	m := metrics.New()
	clk := clock.NewManual(t0)

	store := &violationStore{}
	latest := &LatestFrame{}
	tr := tracker.New(tracker.Options{PixelsPerMeter: 20})
	sup := dedup.NewSuppressor(dedup.Options{
		IOUThreshold:  0.7,
		FrameWindow:   60,
		RingSize:      100,
		TimeWindow:    300 * time.Second,
		Retention:     10 * time.Minute,
		SweepInterval: 300 * time.Second,
	}, hashStore{}, clk, log, m)
	em := emitter.New(store, emitter.Options{CameraID: 1, CameraName: "test", JPEGQuality: 80, PlateJPEGQuality: 90}, log, m)

	opts := Options{
		DetectionSize: image.Pt(640, 360),
		Confidence:    0.4,
		PairIOU:       0.1,
		MinSpeedKPH:   minSpeed,
		SkipInference: 1,
		QueueTimeout:  10 * time.Millisecond,
	}
	p := New(opts, capture.NewQueue(), general, violation, tr, sup, em, latest, log, m)
	return &fixture{pipeline: p, store: store, latest: latest, metrics: m}
}

// frameAt builds a 1280x720 frame; consecutive frames are 0.36s apart so a
// 10px step at 20 px/m is 5 km/h.
func frameAt(i int) capture.Frame {
	return capture.Frame{
		Image:     image.NewRGBA(image.Rect(0, 0, 1280, 720)),
		Index:     uint64(i),
		Timestamp: t0.Add(time.Duration(i) * 360 * time.Millisecond),
	}
}

// ========================================
// End to end
// ========================================

func TestProcessFrame_EmitsOncePerRider(t *testing.T) {
	f := newFixture(movingRider(), noHelmetWithPlate(), 2)
	ctx := context.Background()

	var all []Outcome
	for i := 1; i <= 10; i++ {
		all = append(all, f.pipeline.ProcessFrame(ctx, frameAt(i), i)...)
	}

	expected := []Outcome{OutcomeTooSlow, OutcomeEmitted}
	for i, want := range expected {
		if all[i] != want {
			t.Errorf("Frame %d: expected %s, got %s", i+1, want, all[i])
		}
	}
	for i := 2; i < len(all); i++ {
		if all[i] != OutcomeDuplicate {
			t.Errorf("Frame %d: expected duplicate, got %s", i+1, all[i])
		}
	}

	if f.store.count() != 1 {
		t.Fatalf("Expected exactly one stored violation, got %d", f.store.count())
	}
	v := f.store.created[0]
	if v.PlateNumber != "AB1234" {
		t.Errorf("Expected plate AB1234, got %q", v.PlateNumber)
	}
	if v.SpeedKPH < 4.99 || v.SpeedKPH > 5.01 {
		t.Errorf("Expected ~5 km/h, got %v", v.SpeedKPH)
	}
	if len(v.PlateImage) == 0 {
		t.Error("Expected plate crop to be stored")
	}
	if !v.Timestamp.Equal(frameAt(2).Timestamp) {
		t.Errorf("Expected capture timestamp, got %v", v.Timestamp)
	}
}

func TestProcessFrame_ZeroMinSpeedDisablesGate(t *testing.T) {
	f := newFixture(movingRider(), noHelmetWithPlate(), 0)

	out := f.pipeline.ProcessFrame(context.Background(), frameAt(1), 1)
	if len(out) != 1 || out[0] != OutcomeEmitted {
		t.Errorf("Expected immediate emission, got %v", out)
	}
}

func TestProcessFrame_HelmetIsNoViolation(t *testing.T) {
	helmet := detectorFunc(func(image.Image) ([]dto.Detection, error) {
		return []dto.Detection{{Label: "Helmet", Box: image.Rect(0, 0, 20, 20)}}, nil
	})
	f := newFixture(movingRider(), helmet, 0)

	out := f.pipeline.ProcessFrame(context.Background(), frameAt(1), 1)
	if len(out) != 1 || out[0] != OutcomeNoViolation {
		t.Errorf("Expected no violation, got %v", out)
	}
	if f.store.count() != 0 {
		t.Error("Expected nothing stored")
	}
}

func TestProcessFrame_RiderFailuresAreIsolated(t *testing.T) {
	twoRiders := detectorFunc(func(image.Image) ([]dto.Detection, error) {
		return []dto.Detection{
			{Label: "person", Box: image.Rect(10, 10, 50, 110)},
			{Label: "person", Box: image.Rect(400, 10, 440, 110)},
			{Label: "motorcycle", Box: image.Rect(5, 60, 60, 140)},
			{Label: "motorcycle", Box: image.Rect(395, 60, 450, 140)},
		}, nil
	})

	var mu sync.Mutex
	calls := 0
	flaky := detectorFunc(func(img image.Image) ([]dto.Detection, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			return nil, errors.New("inference failed")
		case 2:
			panic("corrupt tensor")
		default:
			return nil, nil
		}
	})

	f := newFixture(twoRiders, flaky, 0)
	ctx := context.Background()

	out := f.pipeline.ProcessFrame(ctx, frameAt(1), 1)
	if len(out) != 2 || out[0] != OutcomeFailed || out[1] != OutcomeFailed {
		t.Fatalf("Expected two failed riders, got %v", out)
	}
	if f.metrics.RiderFailures.Load() != 2 {
		t.Errorf("Expected 2 rider failures, got %d", f.metrics.RiderFailures.Load())
	}

	out = f.pipeline.ProcessFrame(ctx, frameAt(2), 2)
	if len(out) != 2 || out[0] != OutcomeNoViolation || out[1] != OutcomeNoViolation {
		t.Errorf("Expected processing to continue, got %v", out)
	}
	if _, ok := f.latest.Snapshot(); !ok {
		t.Error("Expected latest frame to be published")
	}
}

func TestProcessFrame_GeneralDetectorErrorPublishesRawFrame(t *testing.T) {
	broken := detectorFunc(func(image.Image) ([]dto.Detection, error) {
		return nil, errors.New("network not initialized")
	})
	f := newFixture(broken, noHelmetWithPlate(), 0)

	out := f.pipeline.ProcessFrame(context.Background(), frameAt(1), 1)
	if len(out) != 0 {
		t.Errorf("Expected no outcomes, got %v", out)
	}
	img, ok := f.latest.Snapshot()
	if !ok || img.Bounds() != image.Rect(0, 0, 1280, 720) {
		t.Errorf("Expected raw frame to be published, got ok=%v", ok)
	}
	if f.metrics.DetectorErrors.Load() != 1 {
		t.Errorf("Expected detector error counter 1, got %d", f.metrics.DetectorErrors.Load())
	}
}

func TestProcessFrame_DownscalesForGeneralDetector(t *testing.T) {
	var got image.Rectangle
	probe := detectorFunc(func(img image.Image) ([]dto.Detection, error) {
		got = img.Bounds()
		return nil, nil
	})
	f := newFixture(probe, noHelmetWithPlate(), 0)

	f.pipeline.ProcessFrame(context.Background(), frameAt(1), 1)
	if got != image.Rect(0, 0, 640, 360) {
		t.Errorf("Expected 640x360 detector input, got %v", got)
	}
}

// ========================================
// Run loop
// ========================================

func TestRun_SkipsFramesByFactor(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	counting := detectorFunc(func(image.Image) ([]dto.Detection, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil
	})

	f := newFixture(counting, noHelmetWithPlate(), 0)
	f.pipeline.opts.SkipInference = 3
	queue := f.pipeline.queue

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.pipeline.Run(ctx)
		close(done)
	}()

	for i := 1; i <= 6; i++ {
		queue.Put(frameAt(i))
		deadline := time.Now().Add(time.Second)
		for queue.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(300 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("Expected 2 processed frames out of 6, got %d", calls)
	}
	if f.metrics.FramesSkipped.Load() != 4 {
		t.Errorf("Expected 4 skipped frames, got %d", f.metrics.FramesSkipped.Load())
	}
}
