// Package emitter turns accepted violation candidates into stored records.
package emitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"sras/internal/dto"
	"sras/internal/logger"
	"sras/internal/metrics"
	"sras/internal/model"
	"sras/internal/repository"
)

type Status int

const (
	Accepted Status = iota
	Rejected
)

func (s Status) String() string {
	if s == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Rejection reasons.
const (
	ReasonEncode    = "encode"
	ReasonDuplicate = "duplicate"
	ReasonStore     = "store"
)

type Result struct {
	Status    Status
	Reason    string
	Violation *model.Violation
}

// Store is the write side of the violation repository.
type Store interface {
	Create(ctx context.Context, v *model.Violation) (int64, error)
}

// Notifier is told about every stored violation.
type Notifier interface {
	Notify(camera string, v *model.Violation)
}

type Options struct {
	CameraID         int64
	CameraName       string
	JPEGQuality      int
	PlateJPEGQuality int
}

type Emitter struct {
	store     Store
	opts      Options
	notifiers []Notifier
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func New(store Store, opts Options, logger *logger.Logger, m *metrics.Metrics, notifiers ...Notifier) *Emitter {
	return &Emitter{
		store:     store,
		opts:      opts,
		notifiers: notifiers,
		logger:    logger,
		metrics:   m,
	}
}

// Emit encodes the evidence and stores it. Store failures are not retried.
func (e *Emitter) Emit(ctx context.Context, c dto.ViolationCandidate) Result {
	frameJPEG, err := encodeJPEG(c.Annotated, e.opts.JPEGQuality)
	if err != nil {
		e.logger.Error("Failed to encode violation frame: %v", err)
		return e.reject(ReasonEncode, nil)
	}

	var plateJPEG []byte
	if c.PlateCrop != nil {
		plateJPEG, err = encodeJPEG(c.PlateCrop, e.opts.PlateJPEGQuality)
		if err != nil {
			e.logger.Error("Failed to encode plate crop: %v", err)
			return e.reject(ReasonEncode, nil)
		}
	}

	v := &model.Violation{
		CameraID:    e.opts.CameraID,
		Timestamp:   c.Timestamp,
		PlateNumber: c.PlateText,
		Image:       frameJPEG,
		PlateImage:  plateJPEG,
		RiderHash:   c.RiderHash,
		SpeedKPH:    c.SpeedKPH,
		Status:      model.StatusPendingVerification,
	}

	id, err := e.store.Create(ctx, v)
	if errors.Is(err, repository.ErrDuplicateViolation) {
		e.logger.Info("Violation for rider %s already stored, skipping", c.RiderHash)
		return e.reject(ReasonDuplicate, v)
	}
	if err != nil {
		e.logger.Error("Failed to store violation: %v", err)
		return e.reject(ReasonStore, v)
	}
	v.ID = id

	e.metrics.ViolationsEmitted.Add(1)
	e.logger.Info("Violation %d stored (plate=%q, speed=%.1f km/h, %d bytes)", id, v.PlateNumber, v.SpeedKPH, len(frameJPEG)+len(plateJPEG))

	for _, n := range e.notifiers {
		n.Notify(e.opts.CameraName, v)
	}
	return Result{Status: Accepted, Violation: v}
}

func (e *Emitter) reject(reason string, v *model.Violation) Result {
	e.metrics.ViolationsRejected.Add(1)
	return Result{Status: Rejected, Reason: reason, Violation: v}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to encode")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
