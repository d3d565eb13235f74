package l3tracks

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarises tracker behaviour since construction or the last Reset.
type Metrics struct {
	Frames           uint64 `json:"frames"`
	TracksCreated    uint64 `json:"tracks_created"`
	TracksConfirmed  uint64 `json:"tracks_confirmed"`
	TracksRemoved    uint64 `json:"tracks_removed"`
	InvalidDropped   uint64 `json:"invalid_detections_dropped"`
	SpawnsSuppressed uint64 `json:"spawns_suppressed"` // unmatched detections below threshold

	// FragmentationRatio is the share of removed tracks that never reached
	// Confirmed. High values mean the gate or thresholds are too tight.
	FragmentationRatio float64 `json:"fragmentation_ratio"`

	ActiveTracks   int     `json:"active_tracks"`
	FadingTracks   int     `json:"fading_tracks"`
	MeanAlpha      float64 `json:"mean_alpha"`
	MeanConfidence float64 `json:"mean_smoothed_confidence"`
	StdConfidence  float64 `json:"std_smoothed_confidence"`
	MaxConfidence  float64 `json:"max_smoothed_confidence"`
}

type counters struct {
	frames           uint64
	created          uint64
	confirmed        uint64
	removed          uint64
	removedUnconfirm uint64
	invalid          uint64
	suppressed       uint64
}

func computeMetrics(c counters, arena []*track) Metrics {
	m := Metrics{
		Frames:           c.frames,
		TracksCreated:    c.created,
		TracksConfirmed:  c.confirmed,
		TracksRemoved:    c.removed,
		InvalidDropped:   c.invalid,
		SpawnsSuppressed: c.suppressed,
		ActiveTracks:     len(arena),
	}
	if c.removed > 0 {
		m.FragmentationRatio = float64(c.removedUnconfirm) / float64(c.removed)
	}
	if len(arena) == 0 {
		return m
	}

	alphas := make([]float64, len(arena))
	confs := make([]float64, len(arena))
	for i, tr := range arena {
		alphas[i] = tr.Alpha
		confs[i] = tr.SmoothedConfidence
		if tr.State == TrackFading {
			m.FadingTracks++
		}
	}
	m.MeanAlpha = stat.Mean(alphas, nil)
	m.MeanConfidence, m.StdConfidence = stat.MeanStdDev(confs, nil)
	if len(confs) < 2 {
		m.StdConfidence = 0
	}
	m.MaxConfidence = floats.Max(confs)
	return m
}
