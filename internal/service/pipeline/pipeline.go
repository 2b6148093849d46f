// Package pipeline runs detection on queued frames and turns no-helmet
// riders into violation candidates.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"sras/internal/dto"
	"sras/internal/geometry"
	"sras/internal/logger"
	"sras/internal/metrics"
	"sras/internal/service/capture"
	"sras/internal/service/dedup"
	"sras/internal/service/emitter"
	"sras/internal/service/overlay"
	"sras/internal/service/tracker"
)

// Detector finds labeled boxes in an image.
type Detector interface {
	Detect(img image.Image, confidence float64) ([]dto.Detection, error)
}

// Emitter stores a violation candidate.
type Emitter interface {
	Emit(ctx context.Context, c dto.ViolationCandidate) emitter.Result
}

// Outcome is the per-rider result of one processed frame.
type Outcome string

const (
	OutcomeNoViolation Outcome = "no_violation"
	OutcomeTooSlow     Outcome = "too_slow"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeEmitted     Outcome = "emitted"
	OutcomeRejected    Outcome = "rejected"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

type Options struct {
	DetectionSize image.Point
	Confidence    float64
	PairIOU       float64
	PersonLabels  []string
	VehicleLabels []string
	MinSpeedKPH   float64 // 0 disables speed gating
	SkipInference int
	QueueTimeout  time.Duration
}

type Pipeline struct {
	opts       Options
	queue      *capture.Queue
	general    Detector
	violation  Detector
	tracker    *tracker.Tracker
	suppressor *dedup.Suppressor
	emitter    Emitter
	latest     *LatestFrame
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func New(opts Options, queue *capture.Queue, general, violation Detector, tr *tracker.Tracker,
	suppressor *dedup.Suppressor, em Emitter, latest *LatestFrame, logger *logger.Logger, m *metrics.Metrics) *Pipeline {
	if opts.SkipInference <= 0 {
		opts.SkipInference = 1
	}
	if len(opts.PersonLabels) == 0 {
		opts.PersonLabels = []string{"person"}
	}
	if len(opts.VehicleLabels) == 0 {
		opts.VehicleLabels = []string{"motorcycle"}
	}
	return &Pipeline{
		opts:       opts,
		queue:      queue,
		general:    general,
		violation:  violation,
		tracker:    tr,
		suppressor: suppressor,
		emitter:    em,
		latest:     latest,
		logger:     logger,
		metrics:    m,
	}
}

// Run consumes frames until ctx is done. The pipeline goroutine is the only
// writer of the tracker and the suppressor.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("Detection pipeline started")
	defer p.logger.Info("Detection pipeline stopped")

	counter := 0
	for {
		if ctx.Err() != nil {
			return
		}
		p.suppressor.MaybeSweep(ctx)

		frame, ok := p.queue.Get(p.opts.QueueTimeout)
		if !ok {
			continue
		}

		counter++
		if counter%p.opts.SkipInference != 0 {
			p.metrics.FramesSkipped.Add(1)
			continue
		}
		p.ProcessFrame(ctx, frame, counter)
	}
}

// ProcessFrame detects riders in frame, evaluates each one and publishes the
// annotated frame. index is the pipeline's frame counter.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame capture.Frame, index int) []Outcome {
	start := time.Now()
	defer func() { p.metrics.UpdateProcessLatency(time.Since(start)) }()
	p.metrics.FramesProcessed.Add(1)

	bounds := frame.Image.Bounds()
	annotated := overlay.ToRGBA(frame.Image)

	small := imaging.Resize(frame.Image, p.opts.DetectionSize.X, p.opts.DetectionSize.Y, imaging.Linear)
	dets, err := p.general.Detect(small, p.opts.Confidence)
	if err != nil {
		p.metrics.DetectorErrors.Add(1)
		p.logger.Error("General detection failed on frame %d: %v", index, err)
		p.latest.Set(annotated)
		return nil
	}

	sx := float64(bounds.Dx()) / float64(p.opts.DetectionSize.X)
	sy := float64(bounds.Dy()) / float64(p.opts.DetectionSize.Y)

	riders := PairRiders(dets, p.opts.PersonLabels, p.opts.VehicleLabels, p.opts.PairIOU)
	p.metrics.RidersSeen.Add(uint64(len(riders)))

	outcomes := make([]Outcome, 0, len(riders))
	for _, r := range riders {
		region := geometry.Scale(r, sx, sy).Add(bounds.Min)
		outcomes = append(outcomes, p.evaluateRider(ctx, frame, index, region, annotated))
	}

	p.latest.Set(annotated)
	return outcomes
}

// evaluateRider isolates one rider: an error or panic only fails that rider.
func (p *Pipeline) evaluateRider(ctx context.Context, frame capture.Frame, index int, region image.Rectangle, annotated *image.RGBA) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Rider evaluation panicked on frame %d: %v", index, r)
			p.metrics.RiderFailures.Add(1)
			outcome = OutcomeFailed
		}
	}()

	outcome, err := p.processRider(ctx, frame, index, region, annotated)
	if err != nil {
		p.logger.Error("Rider evaluation failed on frame %d: %v", index, err)
		p.metrics.RiderFailures.Add(1)
		return OutcomeFailed
	}
	return outcome
}

func (p *Pipeline) processRider(ctx context.Context, frame capture.Frame, index int, region image.Rectangle, annotated *image.RGBA) (Outcome, error) {
	id := p.tracker.Update(region, index, frame.Timestamp)
	speed := p.tracker.Speed(id)

	boxColor := overlay.Gray
	if speed >= p.opts.MinSpeedKPH {
		boxColor = overlay.Blue
	}
	overlay.DrawBox(annotated, region, boxColor, 2)
	overlay.DrawLabel(annotated, image.Pt(region.Min.X, region.Min.Y-5), fmt.Sprintf("Rider %d: %.1f km/h", id, speed), boxColor)

	cropRect := region.Intersect(frame.Image.Bounds())
	if cropRect.Empty() {
		return OutcomeSkipped, nil
	}
	crop := imaging.Crop(frame.Image, cropRect)

	subs, err := p.violation.Detect(crop, p.opts.Confidence)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("violation detection: %w", err)
	}

	findings := classify(subs, crop.Bounds())
	for _, d := range subs {
		overlay.DrawBox(annotated, d.Box.Add(cropRect.Min), subColor(d.Label), 2)
		overlay.DrawLabel(annotated, d.Box.Min.Add(cropRect.Min).Sub(image.Pt(0, 3)), d.Label, subColor(d.Label))
	}

	if !findings.noHelmet {
		return OutcomeNoViolation, nil
	}
	if p.opts.MinSpeedKPH > 0 && speed < p.opts.MinSpeedKPH {
		return OutcomeTooSlow, nil
	}

	decision := p.suppressor.ShouldEmit(ctx, crop, findings.plateText, region, index)
	if !decision.Emit {
		p.metrics.ViolationsDuplicate.Add(1)
		return OutcomeDuplicate, nil
	}

	overlay.DrawLabel(annotated, image.Pt(region.Min.X, region.Max.Y+15), fmt.Sprintf("Speed: %.1f km/h", speed), overlay.Red)

	var plateCrop image.Image
	if !findings.plateBox.Empty() {
		plateCrop = imaging.Crop(crop, findings.plateBox)
	}

	res := p.emitter.Emit(ctx, dto.ViolationCandidate{
		RiderCrop: crop,
		Annotated: cloneRGBA(annotated),
		PlateText: findings.plateText,
		PlateCrop: plateCrop,
		SpeedKPH:  speed,
		RiderHash: decision.Hash,
		Box:       region,
		Frame:     index,
		Timestamp: frame.Timestamp,
	})
	if res.Status != emitter.Accepted {
		return OutcomeRejected, nil
	}
	return OutcomeEmitted, nil
}

// subColor picks the overlay color of a violation-model label.
func subColor(label string) color.Color {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "no helmet"):
		return overlay.Red
	case strings.Contains(l, "helmet"):
		return overlay.Green
	default:
		return overlay.White
	}
}
