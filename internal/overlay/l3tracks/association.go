package l3tracks

import (
	"github.com/banshee-data/overlay/internal/overlay/debug"
	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
)

// Match pairs an arena index with a detection index.
type Match struct {
	Track     int
	Detection int
	Distance  float64
}

// Association is the result of matching one frame.
type Association struct {
	Matches             []Match
	UnmatchedTracks     []int // arena indices, ascending
	UnmatchedDetections []int // detection indices, ascending
}

// associate greedily matches tracks to detections.
//
// Tracks are visited in arena order, which is ascending ID. Each claims the
// nearest unclaimed detection with the same label whose centre lies within
// maxDist of the track's current centre. Equal distances go to the lower
// detection index. Each track and each detection appears in at most one
// match. Every evaluated same-label pair is reported to dc when non-nil.
func associate(tracks []*track, dets []l2detect.Detection, maxDist float64, dc *debug.Collector) Association {
	claimed := make([]bool, len(dets))
	var out Association

	for ti, tr := range tracks {
		best, bestDist := -1, 0.0

		for di := range dets {
			if claimed[di] || dets[di].Label != tr.Label {
				continue
			}
			d := l1geom.CenterDistance(tr.Rect, dets[di].Box)
			within := d <= maxDist
			if dc != nil {
				dc.RecordAssociation(debug.AssociationRecord{
					TrackID:        tr.ID,
					DetectionIndex: di,
					Label:          tr.Label,
					Distance:       d,
					Accepted:       within,
				})
			}
			if !within {
				continue
			}
			if best < 0 || d < bestDist {
				best, bestDist = di, d
			}
		}

		if best < 0 {
			out.UnmatchedTracks = append(out.UnmatchedTracks, ti)
			continue
		}
		claimed[best] = true
		out.Matches = append(out.Matches, Match{Track: ti, Detection: best, Distance: bestDist})
	}

	for di, c := range claimed {
		if !c {
			out.UnmatchedDetections = append(out.UnmatchedDetections, di)
		}
	}
	return out
}
