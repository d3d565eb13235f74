package l2detect

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/overlay/internal/overlay/l1geom"
)

// SyntheticDetector produces noisy detections of objects moving on circular
// paths. It reproduces the artefacts real models show (box jitter,
// confidence wobble, single-frame dropouts) and is used for demos and for
// exercising the tracker without a model file.
type SyntheticDetector struct {
	ObjectCount int           // number of simulated objects
	Jitter      float64       // max box jitter per frame (normalised units)
	DropRate    float64       // probability an object is missed in a frame
	Period      time.Duration // time for one lap of the circular path

	mu    sync.Mutex
	rng   *rand.Rand
	start time.Time
}

// NewSyntheticDetector creates a generator with a fixed seed so runs are
// reproducible.
func NewSyntheticDetector(seed int64) *SyntheticDetector {
	return &SyntheticDetector{
		ObjectCount: 4,
		Jitter:      0.01,
		DropRate:    0.1,
		Period:      8 * time.Second,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

var syntheticLabels = []string{"person", "car", "dog", "bicycle"}

// Detect returns the simulated detections at frame.Captured.
func (s *SyntheticDetector) Detect(ctx context.Context, frame Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.start.IsZero() {
		s.start = frame.Captured
	}
	elapsed := frame.Captured.Sub(s.start).Seconds()
	period := s.Period.Seconds()
	if period <= 0 {
		period = 1
	}

	dets := make([]Detection, 0, s.ObjectCount)
	for i := 0; i < s.ObjectCount; i++ {
		if s.rng.Float64() < s.DropRate {
			continue
		}
		phase := 2*math.Pi*elapsed/period + float64(i)*math.Pi/2
		radius := 0.25 + 0.05*float64(i%2)
		c := l1geom.Point{
			X: 0.5 + radius*math.Cos(phase) + s.jitter(),
			Y: 0.5 + radius*math.Sin(phase) + s.jitter(),
		}
		size := l1geom.Size{W: 0.12 + s.jitter(), H: 0.18 + s.jitter()}
		dets = append(dets, Detection{
			Label:      syntheticLabels[i%len(syntheticLabels)],
			Confidence: l1geom.Clamp01(0.75 + 0.2*(s.rng.Float64()-0.5)),
			Box:        l1geom.RectFromCenter(c, size),
		})
	}
	return dets, nil
}

func (s *SyntheticDetector) jitter() float64 {
	return (s.rng.Float64()*2 - 1) * s.Jitter
}

// Close is a no-op.
func (s *SyntheticDetector) Close() error { return nil }

// TickerSource emits empty frames at a fixed rate. It pairs with
// SyntheticDetector when no camera is attached.
type TickerSource struct {
	Interval time.Duration
	Now      func() time.Time

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// Read blocks for one interval and returns a frame stamped with Now().
func (s *TickerSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrClosed
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-time.After(s.Interval):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Frame{Seq: s.seq, Captured: now()}, nil
}

// Close stops the source.
func (s *TickerSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
