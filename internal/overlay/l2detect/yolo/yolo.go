// Package yolo provides the OpenCV-backed detector and frame source.
//
// It is kept apart from l2detect so that the tracker and its tests build
// without cgo; only the overlay command imports it.
package yolo

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/overlay/internal/monitoring"
	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
)

// Config holds YOLO detector configuration.
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputSize        int
}

// DefaultConfig returns defaults for a YOLOv8n ONNX export.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputSize:        640,
	}
}

// Detector runs a YOLOv8 ONNX model through OpenCV DNN.
type Detector struct {
	mu     sync.Mutex
	net    gocv.Net
	cfg    Config
	closed bool
}

var _ l2detect.Detector = (*Detector)(nil)

// New loads the model named by cfg.ModelPath.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file %s: %w", cfg.ModelPath, err)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultConfig().InputSize
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}
	return &Detector{net: net, cfg: cfg}, nil
}

var _ l2detect.ConfidenceSetter = (*Detector)(nil)

// SetMinConfidence changes the score below which candidates are discarded.
func (d *Detector) SetMinConfidence(c float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.ConfidenceThresh = float32(c)
}

// Detect runs inference on frame and returns normalised detections.
func (d *Detector) Detect(ctx context.Context, frame l2detect.Frame) ([]l2detect.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, l2detect.ErrClosed
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Pixels) == 0 {
		return nil, l2detect.ErrNoFrame
	}

	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pixels)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer img.Close()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parseOutput(output, float32(frame.Width), float32(frame.Height))
}

// parseOutput decodes a [1, 4+classes, anchors] YOLOv8 tensor and applies NMS.
func (d *Detector) parseOutput(output gocv.Mat, imgW, imgH float32) ([]l2detect.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output rank %d", len(dims))
	}
	attrs, anchors := dims[1], dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read YOLO output: %w", err)
	}

	var (
		boxes    []image.Rectangle
		scores   []float32
		classIDs []int
	)
	scale := float32(d.cfg.InputSize)
	for i := 0; i < anchors; i++ {
		best, bestID := float32(0), -1
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best, bestID = s, c-4
			}
		}
		if bestID < 0 || best < d.cfg.ConfidenceThresh {
			continue
		}
		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		x1 := int((cx - w/2) * imgW / scale)
		y1 := int((cy - h/2) * imgH / scale)
		x2 := int((cx + w/2) * imgW / scale)
		y2 := int((cy + h/2) * imgH / scale)
		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		scores = append(scores, best)
		classIDs = append(classIDs, bestID)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.cfg.ConfidenceThresh, d.cfg.NMSThresh)
	dets := make([]l2detect.Detection, 0, len(indices))
	for _, idx := range indices {
		b := boxes[idx]
		dets = append(dets, l2detect.Detection{
			Label:      l2detect.ClassName(classIDs[idx]),
			Confidence: float64(scores[idx]),
			Box: l1geom.Rect{
				X: float64(b.Min.X) / float64(imgW),
				Y: float64(b.Min.Y) / float64(imgH),
				W: float64(b.Dx()) / float64(imgW),
				H: float64(b.Dy()) / float64(imgH),
			},
		})
	}
	return dets, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

// CaptureSource reads frames from a camera index, file or stream URL.
type CaptureSource struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	seq    uint64
	now    func() time.Time
	closed bool
}

var _ l2detect.FrameSource = (*CaptureSource)(nil)

// OpenCapture opens uri; a bare integer selects a local camera device.
func OpenCapture(uri string, now func() time.Time) (*CaptureSource, error) {
	var device interface{} = uri
	var idx int
	if _, err := fmt.Sscanf(uri, "%d", &idx); err == nil && fmt.Sprint(idx) == uri {
		device = idx
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", uri, err)
	}
	if now == nil {
		now = time.Now
	}
	monitoring.Logf("opened capture source %q", uri)
	return &CaptureSource{vc: vc, mat: gocv.NewMat(), now: now}, nil
}

// Read grabs the next frame. It returns l2detect.ErrNoFrame when the
// device produced nothing.
func (s *CaptureSource) Read(ctx context.Context) (l2detect.Frame, error) {
	if err := ctx.Err(); err != nil {
		return l2detect.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return l2detect.Frame{}, l2detect.ErrClosed
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return l2detect.Frame{}, l2detect.ErrNoFrame
	}
	s.seq++
	return l2detect.Frame{
		Seq:      s.seq,
		Captured: s.now(),
		Width:    s.mat.Cols(),
		Height:   s.mat.Rows(),
		Pixels:   s.mat.ToBytes(),
	}, nil
}

// Close releases the device.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
