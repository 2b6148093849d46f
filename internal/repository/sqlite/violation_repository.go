package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sras/internal/model"
	"sras/internal/repository"
)

// ViolationRepository implements repository.ViolationRepository for SQLite.
type ViolationRepository struct {
	db              *DB
	duplicateWindow time.Duration
}

// NewViolationRepository creates a new SQLite violation repository. A Create
// whose rider hash was stored less than duplicateWindow before the new record
// is rejected with repository.ErrDuplicateViolation; 0 disables the check.
func NewViolationRepository(db *DB, duplicateWindow time.Duration) *ViolationRepository {
	return &ViolationRepository{db: db, duplicateWindow: duplicateWindow}
}

// Create stores a violation and returns its ID. Ref and Status are filled in when empty.
func (r *ViolationRepository) Create(ctx context.Context, v *model.Violation) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if v.Ref == "" {
		v.Ref = uuid.New().String()
	}
	if v.Status == "" {
		v.Status = model.StatusPendingVerification
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if v.RiderHash != "" && r.duplicateWindow > 0 {
		since := v.Timestamp.Add(-r.duplicateWindow)
		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM violations WHERE rider_hash = ? AND timestamp >= ?
		`, v.RiderHash, since.UnixMilli()).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("failed to check duplicate violation: %w", err)
		}
		if count > 0 {
			return 0, repository.ErrDuplicateViolation
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO violations (ref, camera_id, timestamp, plate_number, image, plate_image, rider_hash, speed_kph, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.Ref, v.CameraID, v.Timestamp.UnixMilli(), nullString(v.PlateNumber), v.Image,
		nullBytes(v.PlateImage), nullString(v.RiderHash), v.SpeedKPH, v.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert violation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit violation: %w", err)
	}

	v.ID = id
	return id, nil
}

// GetByID retrieves a violation by its ID, nil when it does not exist.
func (r *ViolationRepository) GetByID(ctx context.Context, id int64) (*model.Violation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		v         model.Violation
		ts        int64
		plate     sql.NullString
		riderHash sql.NullString
	)
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, ref, camera_id, timestamp, plate_number, image, plate_image, rider_hash, speed_kph, status
		FROM violations WHERE id = ?
	`, id).Scan(&v.ID, &v.Ref, &v.CameraID, &ts, &plate, &v.Image, &v.PlateImage, &riderHash, &v.SpeedKPH, &v.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}

	v.Timestamp = time.UnixMilli(ts)
	v.PlateNumber = plate.String
	v.RiderHash = riderHash.String
	return &v, nil
}

// ExistsRecent reports whether a violation with riderHash was stored at or after since.
func (r *ViolationRepository) ExistsRecent(ctx context.Context, riderHash string, since time.Time) (bool, error) {
	if riderHash == "" {
		return false, nil
	}

	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM violations WHERE rider_hash = ? AND timestamp >= ?
	`, riderHash, since.UnixMilli()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent violation: %w", err)
	}
	return count > 0, nil
}

// AgedHashes returns the distinct rider hashes of violations stored before the cutoff.
func (r *ViolationRepository) AgedHashes(ctx context.Context, before time.Time) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT DISTINCT rider_hash FROM violations
		WHERE rider_hash IS NOT NULL AND rider_hash != '' AND timestamp < ?
	`, before.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query aged hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan rider hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Stats returns statistics about stored violations.
func (r *ViolationRepository) Stats(ctx context.Context) (*model.ViolationStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.ViolationStats{
		PerStatus: make(map[string]int),
		PerCamera: make(map[string]int),
	}

	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN plate_number IS NOT NULL AND plate_number != '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(LENGTH(image) + COALESCE(LENGTH(plate_image), 0)), 0)
		FROM violations
	`).Scan(&stats.Total, &stats.WithPlate, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}

	statusRows, err := r.db.Conn().QueryContext(ctx, `SELECT status, COUNT(*) FROM violations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	// rows must be closed before the next query, the pool holds one connection
	for statusRows.Next() {
		var status string
		var count int
		if err := statusRows.Scan(&status, &count); err != nil {
			statusRows.Close()
			return nil, err
		}
		stats.PerStatus[status] = count
	}
	statusRows.Close()

	cameraRows, err := r.db.Conn().QueryContext(ctx, `
		SELECT c.name, COUNT(*)
		FROM violations v
		JOIN cameras c ON c.id = v.camera_id
		GROUP BY c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cameras: %w", err)
	}
	defer cameraRows.Close()

	for cameraRows.Next() {
		var name string
		var count int
		if err := cameraRows.Scan(&name, &count); err != nil {
			return nil, err
		}
		stats.PerCamera[name] = count
	}

	return stats, cameraRows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
