// Package l2detect owns Layer 2 (Detections) of the overlay data model.
//
// Responsibilities: the per-frame Detection record handed to the tracker,
// input sanitisation, and the Detector / Frame contracts implemented by
// inference backends (see the yolo subpackage).
//
// Dependency rule: L2 may depend on L1, but never on L3.
package l2detect

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/overlay/internal/overlay/l1geom"
)

// ErrNoFrame is returned by a FrameSource when no frame is available yet.
var ErrNoFrame = errors.New("no frame available")

// ErrClosed is returned when a detector or source is used after Close.
var ErrClosed = errors.New("closed")

// Detection is one candidate object observed in a single frame.
// Box uses the l1geom convention (normalised, top-left origin).
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        l1geom.Rect `json:"box"`
}

// IsValid reports whether d has a finite confidence and a finite box with
// positive area.
func (d Detection) IsValid() bool {
	return l1geom.IsFinite(d.Confidence) && d.Box.IsValid()
}

// Sanitize returns the valid detections of dets, preserving their order,
// together with the number of dropped entries. The input slice is not
// modified. Logging the drop count is the caller's job.
func Sanitize(dets []Detection) ([]Detection, int) {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.IsValid() {
			out = append(out, d)
		}
	}
	return out, len(dets) - len(out)
}

// Frame is one captured image. Pixels holds packed 8-bit BGR rows.
type Frame struct {
	Seq      uint64
	Captured time.Time
	Width    int
	Height   int
	Pixels   []byte
}

// FrameSource produces frames from a camera, file or screen stream.
type FrameSource interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Detector runs inference on a frame and returns its detections.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Detection, error)
	Close() error
}

// ConfidenceSetter is implemented by detectors that filter by confidence
// themselves. The runner sets the floor from the live tuning every frame.
type ConfidenceSetter interface {
	SetMinConfidence(c float64)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame Frame) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame Frame) ([]Detection, error) {
	return f(ctx, frame)
}

// Close is a no-op.
func (f DetectorFunc) Close() error { return nil }
