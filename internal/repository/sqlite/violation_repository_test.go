package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"sras/internal/model"
	"sras/internal/repository"
)

// ========================================
// Helpers
// ========================================

func newTestDB(t *testing.T) *DB {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "violations_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCamera(t *testing.T, db *DB) *model.Camera {
	t.Helper()
	cam, err := NewCameraRepository(db).GetOrCreate(context.Background(), "Default Camera", "http://cam/video")
	if err != nil {
		t.Fatalf("Failed to create camera: %v", err)
	}
	return cam
}

// ========================================
// Camera Repository Tests
// ========================================

func TestCameraRepository_GetOrCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewCameraRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "gate", "http://a/video")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	second, err := repo.GetOrCreate(ctx, "gate", "http://b/video")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Expected same camera id, got %d and %d", first.ID, second.ID)
	}
	if second.StreamURL != "http://a/video" {
		t.Errorf("Expected stream url to be kept, got %s", second.StreamURL)
	}
}

// ========================================
// Violation Repository Tests
// ========================================

func TestViolationRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 300*time.Second)
	ctx := context.Background()

	ts := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	v := &model.Violation{
		CameraID:    cam.ID,
		Timestamp:   ts,
		PlateNumber: "AB1234",
		Image:       []byte{0xFF, 0xD8, 0xFF, 0xD9},
		PlateImage:  []byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9},
		RiderHash:   "abc",
		SpeedKPH:    12.5,
	}

	id, err := repo.Create(ctx, v)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if v.Ref == "" {
		t.Error("Expected generated ref")
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected violation, got nil")
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, got.Timestamp)
	}
	if got.PlateNumber != "AB1234" || got.RiderHash != "abc" || got.SpeedKPH != 12.5 {
		t.Errorf("Unexpected violation fields: %+v", got)
	}
	if got.Status != model.StatusPendingVerification {
		t.Errorf("Expected pending status, got %s", got.Status)
	}
	if len(got.PlateImage) != 5 {
		t.Errorf("Expected plate image bytes, got %d", len(got.PlateImage))
	}
}

func TestViolationRepository_GetByIDMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewViolationRepository(db, 0)

	got, err := repo.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}
}

func TestViolationRepository_NoPlateStoresNull(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 0)
	ctx := context.Background()

	id, err := repo.Create(ctx, &model.Violation{CameraID: cam.ID, Image: []byte{1}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, id)
	if got.PlateNumber != "" || got.PlateImage != nil {
		t.Errorf("Expected empty plate, got %q / %v", got.PlateNumber, got.PlateImage)
	}
}

func TestViolationRepository_DuplicateWithinWindow(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 300*time.Second)
	ctx := context.Background()

	base := time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)
	if _, err := repo.Create(ctx, &model.Violation{CameraID: cam.ID, Timestamp: base, Image: []byte{1}, RiderHash: "same"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := repo.Create(ctx, &model.Violation{CameraID: cam.ID, Timestamp: base.Add(299 * time.Second), Image: []byte{1}, RiderHash: "same"})
	if !errors.Is(err, repository.ErrDuplicateViolation) {
		t.Fatalf("Expected ErrDuplicateViolation, got %v", err)
	}

	if _, err := repo.Create(ctx, &model.Violation{CameraID: cam.ID, Timestamp: base.Add(301 * time.Second), Image: []byte{1}, RiderHash: "same"}); err != nil {
		t.Errorf("Expected create outside window to succeed, got %v", err)
	}
}

func TestViolationRepository_ExistsRecent(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 0)
	ctx := context.Background()

	ts := time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)
	if _, err := repo.Create(ctx, &model.Violation{CameraID: cam.ID, Timestamp: ts, Image: []byte{1}, RiderHash: "h1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		since    time.Time
		expected bool
	}{
		{"inside window", "h1", ts.Add(-time.Minute), true},
		{"boundary", "h1", ts, true},
		{"after record", "h1", ts.Add(time.Second), false},
		{"other hash", "h2", ts.Add(-time.Minute), false},
		{"empty hash", "", ts.Add(-time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ExistsRecent(ctx, tt.hash, tt.since)
			if err != nil {
				t.Fatalf("ExistsRecent failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ExistsRecent(%q) = %v, expected %v", tt.hash, got, tt.expected)
			}
		})
	}
}

func TestViolationRepository_AgedHashes(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 0)
	ctx := context.Background()

	now := time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)
	ages := map[string]int{"m5": 5, "m9": 9, "m11": 11, "m15": 15}
	for hash, minutes := range ages {
		v := &model.Violation{CameraID: cam.ID, Timestamp: now.Add(-time.Duration(minutes) * time.Minute), Image: []byte{1}, RiderHash: hash}
		if _, err := repo.Create(ctx, v); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	got, err := repo.AgedHashes(ctx, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("AgedHashes failed: %v", err)
	}
	sort.Strings(got)

	if len(got) != 2 || got[0] != "m11" || got[1] != "m15" {
		t.Errorf("Expected [m11 m15], got %v", got)
	}
}

func TestViolationRepository_Stats(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 0)
	ctx := context.Background()

	repo.Create(ctx, &model.Violation{CameraID: cam.ID, Image: []byte{1, 2}, PlateNumber: "X1"})
	repo.Create(ctx, &model.Violation{CameraID: cam.ID, Image: []byte{1}, PlateImage: []byte{3}})

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 || stats.WithPlate != 1 || stats.TotalBytes != 4 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.PerCamera["Default Camera"] != 2 {
		t.Errorf("Expected 2 violations for camera, got %v", stats.PerCamera)
	}
	if stats.PerStatus[model.StatusPendingVerification] != 2 {
		t.Errorf("Expected 2 pending, got %v", stats.PerStatus)
	}
}

func TestViolationRepository_ConcurrentCreate(t *testing.T) {
	db := newTestDB(t)
	cam := newTestCamera(t, db)
	repo := NewViolationRepository(db, 300*time.Second)
	ctx := context.Background()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			_, err := repo.Create(ctx, &model.Violation{
				CameraID:  cam.ID,
				Image:     []byte{byte(idx)},
				RiderHash: "hash_" + string(rune('a'+idx)),
			})
			done <- err
		}(i)
	}

	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Errorf("Concurrent create failed: %v", err)
		}
	}

	stats, _ := repo.Stats(ctx)
	if stats.Total != 10 {
		t.Errorf("Expected 10 violations, got %d", stats.Total)
	}
}
