// Package visualiser streams tracked-object frames to overlay renderers.
//
// The pipeline hands every processed frame to Publisher, which fans it out
// to connected gRPC clients. Frames travel as google.protobuf.Struct so
// renderers in any language can decode them without generated stubs.
package visualiser

import (
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/overlay/pipeline"
)

// FrameBundle is the renderer's view of one processed frame.
type FrameBundle struct {
	FrameID        uint64      `json:"frame_id"`
	TimestampNanos int64       `json:"timestamp_ns"`
	LatencyMicros  int64       `json:"latency_us"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	Tracks         []TrackView `json:"tracks"`
}

// TrackView is what a renderer needs to draw one box.
type TrackView struct {
	ID         uint64  `json:"id"`
	Label      string  `json:"label"`
	Color      string  `json:"color"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Alpha      float64 `json:"alpha"`
	Confidence float64 `json:"confidence"`
	State      string  `json:"state"`
	VX         float64 `json:"vx"`
	VY         float64 `json:"vy"`
}

// BundleFromResult converts a pipeline result. Track order is preserved.
func BundleFromResult(res pipeline.Result) *FrameBundle {
	b := &FrameBundle{
		FrameID:       res.Seq,
		LatencyMicros: res.Latency.Microseconds(),
		Width:         res.Width,
		Height:        res.Height,
		Tracks:        make([]TrackView, len(res.Tracks)),
	}
	ts := res.Captured
	if ts.IsZero() {
		ts = res.ProcessedAt
	}
	if !ts.IsZero() {
		b.TimestampNanos = ts.UnixNano()
	}
	for i, tr := range res.Tracks {
		b.Tracks[i] = viewOf(tr)
	}
	return b
}

func viewOf(tr l3tracks.Track) TrackView {
	return TrackView{
		ID:         tr.ID,
		Label:      tr.Label,
		Color:      l2detect.LabelColorHex(tr.Label),
		X:          tr.Rect.X,
		Y:          tr.Rect.Y,
		W:          tr.Rect.W,
		H:          tr.Rect.H,
		Alpha:      tr.Alpha,
		Confidence: tr.SmoothedConfidence,
		State:      string(tr.State),
		VX:         tr.Velocity.X,
		VY:         tr.Velocity.Y,
	}
}

// StreamRequest filters what a client receives.
type StreamRequest struct {
	// Labels limits the stream to these labels; empty means all.
	Labels []string
	// MinAlpha hides tracks fainter than this.
	MinAlpha float64
}

// filter returns b restricted to req. b itself is never modified.
func (req StreamRequest) filter(b *FrameBundle) *FrameBundle {
	if len(req.Labels) == 0 && req.MinAlpha <= 0 {
		return b
	}
	keep := make(map[string]bool, len(req.Labels))
	for _, l := range req.Labels {
		keep[l] = true
	}
	out := *b
	out.Tracks = make([]TrackView, 0, len(b.Tracks))
	for _, tv := range b.Tracks {
		if len(keep) > 0 && !keep[tv.Label] {
			continue
		}
		if tv.Alpha < req.MinAlpha {
			continue
		}
		out.Tracks = append(out.Tracks, tv)
	}
	return &out
}
