package repository

import (
	"context"
	"errors"
	"time"

	"sras/internal/model"
)

// ErrDuplicateViolation is returned by Create when a violation with the same
// rider hash was already stored inside the repository's duplicate window.
var ErrDuplicateViolation = errors.New("duplicate violation")

// ViolationRepository defines the persistence boundary for violations.
type ViolationRepository interface {
	// Create operations
	Create(ctx context.Context, v *model.Violation) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*model.Violation, error)
	ExistsRecent(ctx context.Context, riderHash string, since time.Time) (bool, error)
	AgedHashes(ctx context.Context, before time.Time) ([]string, error)
	Stats(ctx context.Context) (*model.ViolationStats, error)
}

// CameraRepository defines the interface for camera data operations.
type CameraRepository interface {
	GetOrCreate(ctx context.Context, name, streamURL string) (*model.Camera, error)
}
