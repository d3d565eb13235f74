package visualiser

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeFrame converts b to its wire form.
func EncodeFrame(b *FrameBundle) (*structpb.Struct, error) {
	tracks := make([]any, len(b.Tracks))
	for i, tv := range b.Tracks {
		tracks[i] = map[string]any{
			"id":         tv.ID,
			"label":      tv.Label,
			"color":      tv.Color,
			"x":          tv.X,
			"y":          tv.Y,
			"w":          tv.W,
			"h":          tv.H,
			"alpha":      tv.Alpha,
			"confidence": tv.Confidence,
			"state":      tv.State,
			"vx":         tv.VX,
			"vy":         tv.VY,
		}
	}
	s, err := structpb.NewStruct(map[string]any{
		"frame_id":     b.FrameID,
		"timestamp_ns": b.TimestampNanos,
		"latency_us":   b.LatencyMicros,
		"width":        b.Width,
		"height":       b.Height,
		"tracks":       tracks,
	})
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", b.FrameID, err)
	}
	return s, nil
}

// DecodeFrame is the inverse of EncodeFrame. Numbers travel as doubles, so
// timestamps keep microsecond rather than nanosecond precision.
func DecodeFrame(s *structpb.Struct) (*FrameBundle, error) {
	f := s.GetFields()
	b := &FrameBundle{
		FrameID:        uint64(f["frame_id"].GetNumberValue()),
		TimestampNanos: int64(f["timestamp_ns"].GetNumberValue()),
		LatencyMicros:  int64(f["latency_us"].GetNumberValue()),
		Width:          int(f["width"].GetNumberValue()),
		Height:         int(f["height"].GetNumberValue()),
	}
	list := f["tracks"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("decode frame %d: missing tracks list", b.FrameID)
	}
	for i, v := range list.GetValues() {
		t := v.GetStructValue()
		if t == nil {
			return nil, fmt.Errorf("decode frame %d: track %d is not an object", b.FrameID, i)
		}
		tf := t.GetFields()
		b.Tracks = append(b.Tracks, TrackView{
			ID:         uint64(tf["id"].GetNumberValue()),
			Label:      tf["label"].GetStringValue(),
			Color:      tf["color"].GetStringValue(),
			X:          tf["x"].GetNumberValue(),
			Y:          tf["y"].GetNumberValue(),
			W:          tf["w"].GetNumberValue(),
			H:          tf["h"].GetNumberValue(),
			Alpha:      tf["alpha"].GetNumberValue(),
			Confidence: tf["confidence"].GetNumberValue(),
			State:      tf["state"].GetStringValue(),
			VX:         tf["vx"].GetNumberValue(),
			VY:         tf["vy"].GetNumberValue(),
		})
	}
	return b, nil
}

// EncodeRequest converts req to its wire form.
func EncodeRequest(req StreamRequest) (*structpb.Struct, error) {
	labels := make([]any, len(req.Labels))
	for i, l := range req.Labels {
		labels[i] = l
	}
	return structpb.NewStruct(map[string]any{
		"labels":    labels,
		"min_alpha": req.MinAlpha,
	})
}

// DecodeRequest reads a stream request. Missing fields select defaults.
func DecodeRequest(s *structpb.Struct) StreamRequest {
	f := s.GetFields()
	req := StreamRequest{MinAlpha: f["min_alpha"].GetNumberValue()}
	for _, v := range f["labels"].GetListValue().GetValues() {
		if l := v.GetStringValue(); l != "" {
			req.Labels = append(req.Labels, l)
		}
	}
	return req
}
