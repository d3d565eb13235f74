package l3tracks

import (
	"time"

	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackPending   TrackState = "pending"   // matched this frame, not yet confirmed
	TrackConfirmed TrackState = "confirmed" // matched this frame, count >= MinDetectionCount
	TrackFading    TrackState = "fading"    // unmatched but within the persistence window
	TrackRemoved   TrackState = "removed"   // dropped from the arena at the end of the frame
)

// Sample is one entry of a track's position history.
type Sample struct {
	Center l1geom.Point `json:"center"`
	Size   l1geom.Size  `json:"size"`
}

// Track is the snapshot of one tracked object handed to callers.
// Snapshots are deep copies and safe to retain.
type Track struct {
	ID                 uint64       `json:"id"`
	Label              string       `json:"label"`
	Rect               l1geom.Rect  `json:"rect"`
	Confidence         float64      `json:"confidence"`
	SmoothedConfidence float64      `json:"smoothed_confidence"`
	Velocity           l1geom.Point `json:"velocity"` // normalised units per second
	Alpha              float64      `json:"alpha"`
	DetectionCount     int          `json:"detection_count"`
	History            []Sample     `json:"history"`
	State              TrackState   `json:"state"`
	CreatedAt          time.Time    `json:"created_at"`
	LastUpdate         time.Time    `json:"last_update"`
}

// RemovedTrack is passed to the removal hook once a track leaves the arena.
type RemovedTrack struct {
	Track
	RemovedAt      time.Time
	PeakConfidence float64
	PathLength     float64 // summed centre displacement over matched frames
	WasConfirmed   bool
}

// track is the arena entry. Exported fields mirror Track; the rest is
// bookkeeping that never leaves the package.
type track struct {
	Track

	fadeFrom          float64      // alpha at the last match
	lastMatchedCentre l1geom.Point // Rect centre at LastUpdate
	lastTouched       time.Time    // last time Update changed this track
	peakConfidence    float64
	pathLength        float64
	wasConfirmed      bool
}

// spawn creates a Pending track from an unmatched detection.
func spawn(id uint64, det l2detect.Detection, now time.Time) *track {
	c := det.Box.Center()
	return &track{
		Track: Track{
			ID:                 id,
			Label:              det.Label,
			Rect:               det.Box,
			Confidence:         det.Confidence,
			SmoothedConfidence: det.Confidence,
			Alpha:              SpawnAlpha,
			DetectionCount:     1,
			History:            []Sample{{Center: c, Size: det.Box.Size()}},
			State:              TrackPending,
			CreatedAt:          now,
			LastUpdate:         now,
		},
		fadeFrom:          SpawnAlpha,
		lastMatchedCentre: c,
		lastTouched:       now,
		peakConfidence:    det.Confidence,
	}
}

// passThrough builds a Confirmed, full-alpha track that mirrors det exactly.
func passThrough(id uint64, det l2detect.Detection, now time.Time) *track {
	tr := spawn(id, det, now)
	tr.Alpha = 1
	tr.fadeFrom = 1
	tr.State = TrackConfirmed
	tr.wasConfirmed = true
	return tr
}

// matchedState is the state of a track that was matched this frame.
func matchedState(count, minCount int) TrackState {
	if count >= minCount {
		return TrackConfirmed
	}
	return TrackPending
}

// snapshot deep-copies the public part of tr.
func (tr *track) snapshot() Track {
	out := tr.Track
	out.History = append([]Sample(nil), tr.History...)
	return out
}

func (tr *track) removed(now time.Time) RemovedTrack {
	snap := tr.snapshot()
	snap.State = TrackRemoved
	return RemovedTrack{
		Track:          snap,
		RemovedAt:      now,
		PeakConfidence: tr.peakConfidence,
		PathLength:     tr.pathLength,
		WasConfirmed:   tr.wasConfirmed,
	}
}

// sweep drops Removed tracks from arena in place, preserving order, and
// returns the shortened slice together with the dropped tracks.
func sweep(arena []*track) (kept, dropped []*track) {
	n := 0
	for _, tr := range arena {
		if tr.State == TrackRemoved {
			dropped = append(dropped, tr)
			continue
		}
		arena[n] = tr
		n++
	}
	for i := n; i < len(arena); i++ {
		arena[i] = nil
	}
	return arena[:n], dropped
}
