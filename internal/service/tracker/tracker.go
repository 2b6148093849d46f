// Package tracker associates rider boxes across frames and estimates their
// ground speed from the centroid displacement.
package tracker

import (
	"image"
	"math"
	"sync"
	"time"

	"sras/internal/geometry"
)

const (
	DefaultMaxStaleFrames = 30
	DefaultMaxDistance    = 100.0
	DefaultWindow         = 2
)

// Sample is one observed rider center.
type Sample struct {
	Frame int
	X, Y  float64
	At    time.Time
}

// Track is the recent history of one rider, ordered by ascending frame.
type Track struct {
	ID      int
	History []Sample
}

// LastFrame is the frame of the newest sample.
func (t *Track) LastFrame() int {
	return t.History[len(t.History)-1].Frame
}

type Options struct {
	PixelsPerMeter float64
	MaxStaleFrames int
	MaxDistance    float64
	Window         int
}

// Tracker keeps live tracks in creation order so association ties resolve
// the same way on every run.
type Tracker struct {
	mu     sync.Mutex
	opts   Options
	tracks []*Track
	nextID int
}

func New(opts Options) *Tracker {
	if opts.MaxStaleFrames <= 0 {
		opts.MaxStaleFrames = DefaultMaxStaleFrames
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = DefaultMaxDistance
	}
	if opts.Window < 2 {
		opts.Window = DefaultWindow
	}
	return &Tracker{opts: opts}
}

// Update assigns box seen at frame to the nearest live track within
// MaxDistance, or to a new track, and returns the track id.
func (t *Tracker) Update(box image.Rectangle, frame int, at time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cx, cy := geometry.Center(box)

	var best *Track
	bestDist := math.Inf(1)
	live := t.tracks[:0]
	for _, tr := range t.tracks {
		if frame-tr.LastFrame() > t.opts.MaxStaleFrames {
			continue
		}
		live = append(live, tr)

		last := tr.History[len(tr.History)-1]
		d := geometry.Distance(last.X, last.Y, cx, cy)
		if d < t.opts.MaxDistance && d < bestDist {
			best = tr
			bestDist = d
		}
	}
	for i := len(live); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = live

	if best == nil {
		best = &Track{ID: t.nextID}
		t.nextID++
		t.tracks = append(t.tracks, best)
	}

	best.History = append(best.History, Sample{Frame: frame, X: cx, Y: cy, At: at})
	if over := len(best.History) - t.opts.Window; over > 0 {
		best.History = append(best.History[:0], best.History[over:]...)
	}
	return best.ID
}

// Speed returns the km/h estimate between the oldest and newest sample of
// track id, 0 when it cannot be computed.
func (t *Tracker) Speed(id int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.find(id)
	if tr == nil || len(tr.History) < 2 {
		return 0
	}
	first, last := tr.History[0], tr.History[len(tr.History)-1]
	elapsed := last.At.Sub(first.At).Seconds()
	if elapsed <= 0 {
		return 0
	}

	meters := geometry.Distance(first.X, first.Y, last.X, last.Y) / t.opts.PixelsPerMeter
	return meters / elapsed * 3.6
}

// Track returns a copy of track id.
func (t *Tracker) Track(id int) (Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.find(id)
	if tr == nil {
		return Track{}, false
	}
	return Track{ID: tr.ID, History: append([]Sample(nil), tr.History...)}, true
}

// Len is the number of tracks not yet evicted.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

func (t *Tracker) find(id int) *Track {
	for _, tr := range t.tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}
