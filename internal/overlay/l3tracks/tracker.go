package l3tracks

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/overlay/internal/overlay/debug"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/timeutil"
)

// RemovalHook receives each track as it leaves the arena. It runs inside
// Update with the tracker lock held and must not block or call back into
// the Tracker.
type RemovalHook func(RemovedTrack)

// Tracker owns the track arena and is the single entry point for per-frame
// updates. Update must be called from one goroutine at a time; Snapshot and
// Metrics may be called concurrently with it.
type Tracker struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	arena     []*track // ascending ID
	nextID    uint64
	last      []Track
	counts    counters
	collector *debug.Collector
	onRemove  RemovalHook
}

// NewTracker returns an empty tracker. A nil clock selects the real clock.
func NewTracker(clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{clock: clock, nextID: 1}
}

// SetDebugCollector attaches c, or detaches with nil.
func (t *Tracker) SetDebugCollector(c *debug.Collector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.collector = c
}

// SetRemovalHook installs fn, or removes the hook with nil.
func (t *Tracker) SetRemovalHook(fn RemovalHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRemove = fn
}

// Update processes one frame of detections under cfg and returns the
// ordered track snapshot: SmoothedConfidence descending, then ID ascending.
//
// Invalid detections (non-finite values, non-positive size) are dropped
// first. With cfg.SmoothingEnabled false the tracker passes detections
// through 1:1 and discards its arena.
func (t *Tracker) Update(dets []l2detect.Detection, cfg TrackerConfig) []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	cfg = cfg.normalised()
	t.counts.frames++

	dets, invalid := l2detect.Sanitize(dets)
	t.counts.invalid += uint64(invalid)

	dc := t.collector
	if dc != nil {
		dc.BeginFrame(t.counts.frames)
		if !dc.IsEnabled() {
			dc = nil
		}
	}

	if cfg.SmoothingEnabled {
		t.trackLocked(dets, now, cfg, dc)
		t.last = ordered(t.arena)
	} else {
		t.last = ordered(t.passThroughLocked(dets, now))
	}

	if t.collector != nil {
		t.collector.Emit()
	}
	return cloneTracks(t.last)
}

func (t *Tracker) trackLocked(dets []l2detect.Detection, now time.Time, cfg TrackerConfig, dc *debug.Collector) {
	assoc := associate(t.arena, dets, cfg.MaxTrackingDistance, dc)

	for _, m := range assoc.Matches {
		tr := t.arena[m.Track]
		before := tr.wasConfirmed
		tr.applyMatch(dets[m.Detection], now, cfg)
		if tr.wasConfirmed && !before {
			t.counts.confirmed++
		}
	}

	for _, ti := range assoc.UnmatchedTracks {
		tr := t.arena[ti]
		progress := tr.applyMiss(now, cfg)
		if dc != nil {
			dc.RecordFade(debug.FadeRecord{
				TrackID:      tr.ID,
				FadeProgress: progress,
				Alpha:        tr.Alpha,
				Smoothed:     tr.SmoothedConfidence,
				Removed:      tr.State == TrackRemoved,
			})
		}
	}

	for _, di := range assoc.UnmatchedDetections {
		det := dets[di]
		if det.Confidence < cfg.ConfidenceThreshold {
			t.counts.suppressed++
			if dc != nil {
				dc.RecordSpawn(debug.SpawnRecord{DetectionIndex: di, Confidence: det.Confidence})
			}
			continue
		}
		tr := spawn(t.allocID(), det, now)
		if cfg.MinDetectionCount <= 1 {
			tr.State = TrackConfirmed
			tr.wasConfirmed = true
			t.counts.confirmed++
		}
		t.arena = append(t.arena, tr)
		t.counts.created++
		if dc != nil {
			dc.RecordSpawn(debug.SpawnRecord{DetectionIndex: di, Confidence: det.Confidence, TrackID: tr.ID})
		}
	}

	var dropped []*track
	t.arena, dropped = sweep(t.arena)
	t.reportRemovedLocked(dropped, now)
}

// passThroughLocked empties the arena and mirrors dets 1:1. The returned
// tracks live for this frame only; IDs still come from the shared counter.
func (t *Tracker) passThroughLocked(dets []l2detect.Detection, now time.Time) []*track {
	for _, tr := range t.arena {
		tr.State = TrackRemoved
	}
	old := t.arena
	t.arena = nil
	t.reportRemovedLocked(old, now)

	out := make([]*track, len(dets))
	for i, det := range dets {
		out[i] = passThrough(t.allocID(), det, now)
	}
	t.counts.created += uint64(len(dets))
	return out
}

func (t *Tracker) reportRemovedLocked(dropped []*track, now time.Time) {
	for _, tr := range dropped {
		t.counts.removed++
		if !tr.wasConfirmed {
			t.counts.removedUnconfirm++
		}
		if t.onRemove != nil {
			t.onRemove(tr.removed(now))
		}
	}
}

func (t *Tracker) allocID() uint64 {
	id := t.nextID
	t.nextID++
	return id
}

func ordered(arena []*track) []Track {
	out := make([]Track, len(arena))
	for i, tr := range arena {
		out[i] = tr.snapshot()
	}
	SortTracks(out)
	return out
}

// SortTracks orders tracks by SmoothedConfidence descending, then ID
// ascending.
func SortTracks(tracks []Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		if tracks[i].SmoothedConfidence != tracks[j].SmoothedConfidence {
			return tracks[i].SmoothedConfidence > tracks[j].SmoothedConfidence
		}
		return tracks[i].ID < tracks[j].ID
	})
}

// Snapshot returns the result of the most recent Update.
func (t *Tracker) Snapshot() []Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneTracks(t.last)
}

// Metrics returns counters and live-track statistics.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return computeMetrics(t.counts, t.arena)
}

// Reset drops every track without calling the removal hook and clears the
// metrics. The ID counter keeps running so IDs are never reused.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arena = nil
	t.last = nil
	t.counts = counters{}
}

// Flush removes every live track, passing each to the removal hook, and
// returns how many were removed. Counters are kept. Call it at shutdown so
// tracks still on screen are reported.
func (t *Tracker) Flush() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := t.arena
	t.reportRemovedLocked(dropped, t.clock.Now())
	t.arena = nil
	t.last = nil
	return len(dropped)
}

func cloneTracks(in []Track) []Track {
	out := make([]Track, len(in))
	for i, tr := range in {
		out[i] = tr
		out[i].History = append([]Sample(nil), tr.History...)
	}
	return out
}
