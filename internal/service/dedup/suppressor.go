// Package dedup decides whether a violation candidate is a new real-world
// event or a repeat of one already reported.
package dedup

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"sras/internal/clock"
	"sras/internal/geometry"
	"sras/internal/logger"
	"sras/internal/metrics"
)

// Rejection reasons.
const (
	ReasonSpatial = "spatial"
	ReasonMemory  = "memory"
	ReasonStore   = "store"
)

// HashStore is the part of the violation store the suppressor consults.
type HashStore interface {
	ExistsRecent(ctx context.Context, riderHash string, since time.Time) (bool, error)
	AgedHashes(ctx context.Context, before time.Time) ([]string, error)
}

type Options struct {
	IOUThreshold  float64
	FrameWindow   int
	RingSize      int
	TimeWindow    time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

// Decision is the outcome of ShouldEmit. Hash is set whenever the spatial
// filter passed.
type Decision struct {
	Emit   bool
	Hash   string
	Reason string
}

type ringEntry struct {
	frame int
	box   image.Rectangle
}

type Suppressor struct {
	mu        sync.Mutex
	opts      Options
	store     HashStore
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
	hashes    map[string]time.Time
	ring      []ringEntry
	lastSweep time.Time
}

func NewSuppressor(opts Options, store HashStore, clk clock.Clock, logger *logger.Logger, m *metrics.Metrics) *Suppressor {
	if opts.RingSize <= 0 {
		opts.RingSize = 100
	}
	return &Suppressor{
		opts:      opts,
		store:     store,
		clock:     clk,
		logger:    logger,
		metrics:   m,
		hashes:    make(map[string]time.Time),
		ring:      make([]ringEntry, 0, opts.RingSize),
		lastSweep: clk.Now(),
	}
}

// ShouldEmit runs the spatial-temporal filter and then the identity filter.
// An accepted candidate is recorded in both. The store lookup runs without
// holding the lock.
func (s *Suppressor) ShouldEmit(ctx context.Context, crop image.Image, plate string, box image.Rectangle, frame int) Decision {
	s.mu.Lock()
	for _, e := range s.ring {
		if abs(frame-e.frame) < s.opts.FrameWindow && geometry.IOU(box, e.box) > s.opts.IOUThreshold {
			s.mu.Unlock()
			return Decision{Reason: ReasonSpatial}
		}
	}

	hash := RiderHash(crop, plate)
	if _, ok := s.hashes[hash]; ok {
		s.mu.Unlock()
		return Decision{Hash: hash, Reason: ReasonMemory}
	}
	now := s.clock.Now()
	s.mu.Unlock()

	seen, err := s.store.ExistsRecent(ctx, hash, now.Add(-s.opts.TimeWindow))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Warning("Rider hash lookup failed, treating %s as unseen: %v", hash, err)
	} else if seen {
		s.hashes[hash] = now
		s.metrics.DedupHashes.Store(uint64(len(s.hashes)))
		return Decision{Hash: hash, Reason: ReasonStore}
	}
	// recorded by another caller while the store was queried
	if _, ok := s.hashes[hash]; ok {
		return Decision{Hash: hash, Reason: ReasonMemory}
	}

	s.hashes[hash] = now
	if len(s.ring) == s.opts.RingSize {
		copy(s.ring, s.ring[1:])
		s.ring = s.ring[:len(s.ring)-1]
	}
	s.ring = append(s.ring, ringEntry{frame: frame, box: box})
	s.metrics.DedupHashes.Store(uint64(len(s.hashes)))

	return Decision{Emit: true, Hash: hash}
}

// MaybeSweep runs Sweep once SweepInterval has passed since the last attempt.
func (s *Suppressor) MaybeSweep(ctx context.Context) {
	s.mu.Lock()
	now := s.clock.Now()
	due := now.Sub(s.lastSweep) >= s.opts.SweepInterval
	if due {
		s.lastSweep = now
	}
	s.mu.Unlock()

	if !due {
		return
	}
	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("Rider hash sweep skipped: %v", err)
	}
}

// Sweep forgets hashes older than Retention, both those the store reports
// and those inserted locally before the cutoff.
func (s *Suppressor) Sweep(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.opts.Retention)

	aged, err := s.store.AgedHashes(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to query aged hashes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.hashes)
	for _, h := range aged {
		delete(s.hashes, h)
	}
	for h, at := range s.hashes {
		if at.Before(cutoff) {
			delete(s.hashes, h)
		}
	}
	s.metrics.DedupHashes.Store(uint64(len(s.hashes)))

	if removed := before - len(s.hashes); removed > 0 {
		s.logger.Info("Swept %d rider hashes, %d remain", removed, len(s.hashes))
	}
	return nil
}

// Len is the number of hashes held in memory.
func (s *Suppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

func (s *Suppressor) Contains(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hashes[hash]
	return ok
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
