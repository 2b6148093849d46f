package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sras/internal/dto"
	"sras/internal/logger"
	"sras/internal/model"
)

const timestampLayout = "2006-01-02_15-04-05.000"

// ArchiveService buffers stored violations in memory and periodically
// writes their evidence JPEGs to disk for offline review.
type ArchiveService struct {
	dir           string
	limit         int
	flushInterval time.Duration
	violations    []dto.BufferedViolation
	bufferCount   map[string]int
	dropped       int
	mu            sync.Mutex
	logger        *logger.Logger
}

func NewArchiveService(dir string, limit int, flushInterval time.Duration, logger *logger.Logger) *ArchiveService {
	return &ArchiveService{
		dir:           dir,
		limit:         limit,
		flushInterval: flushInterval,
		bufferCount:   make(map[string]int),
		logger:        logger,
	}
}

// Run flushes on every tick and once more when ctx is done.
func (s *ArchiveService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Notify buffers the evidence of a stored violation. Once a camera reaches
// the buffer limit further violations are dropped until the next flush.
func (s *ArchiveService) Notify(camera string, v *model.Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bufferCount[camera] >= s.limit {
		s.dropped++
		return
	}

	s.violations = append(s.violations, dto.BufferedViolation{
		Ref:        v.Ref,
		Camera:     camera,
		Plate:      v.PlateNumber,
		Timestamp:  v.Timestamp,
		Image:      v.Image,
		PlateImage: v.PlateImage,
	})
	s.bufferCount[camera]++
}

// Flush writes buffered evidence to disk and resets the buffer.
func (s *ArchiveService) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.violations) == 0 {
		return
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.logger.Error("Error creating archive directory: %v", err)
		return
	}

	savedCount := 0
	for _, v := range s.violations {
		base := Filename(v)
		if err := os.WriteFile(filepath.Join(s.dir, base+".jpg"), v.Image, 0644); err != nil {
			s.logger.Error("Error saving violation %s: %v", base, err)
			continue
		}
		if len(v.PlateImage) > 0 {
			if err := os.WriteFile(filepath.Join(s.dir, base+"_plate.jpg"), v.PlateImage, 0644); err != nil {
				s.logger.Error("Error saving plate for %s: %v", base, err)
			}
		}
		savedCount++
	}

	if s.dropped > 0 {
		s.logger.Warning("Archive buffer full, %d violations not archived", s.dropped)
	}
	s.logger.Info("Archived %d violations to %s", savedCount, s.dir)
	s.violations = s.violations[:0]
	s.bufferCount = make(map[string]int)
	s.dropped = 0
}

// Pending is the number of buffered violations.
func (s *ArchiveService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.violations)
}

// Filename is the archive base name of v without extension.
func Filename(v dto.BufferedViolation) string {
	plate := v.Plate
	if plate == "" {
		plate = "UNKNOWN"
	}
	return fmt.Sprintf("%s_%s_%s_%s", v.Timestamp.Format(timestampLayout), sanitize(v.Camera), sanitize(plate), v.Ref)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '_':
			return '-'
		}
		return r
	}, s)
}
