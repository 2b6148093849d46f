package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"sras/internal/model"
)

// CameraRepository implements repository.CameraRepository for SQLite.
type CameraRepository struct {
	db *DB
}

// NewCameraRepository creates a new SQLite camera repository.
func NewCameraRepository(db *DB) *CameraRepository {
	return &CameraRepository{db: db}
}

// GetOrCreate returns the camera with the given name, inserting it when missing.
// An existing row keeps its stream URL.
func (r *CameraRepository) GetOrCreate(ctx context.Context, name, streamURL string) (*model.Camera, error) {
	r.db.Lock()
	defer r.db.Unlock()

	var cam model.Camera
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, name, stream_url FROM cameras WHERE name = ?
	`, name).Scan(&cam.ID, &cam.Name, &cam.StreamURL)
	if err == nil {
		return &cam, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO cameras (name, stream_url) VALUES (?, ?)
	`, name, streamURL)
	if err != nil {
		return nil, fmt.Errorf("failed to insert camera: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &model.Camera{ID: id, Name: name, StreamURL: streamURL}, nil
}
