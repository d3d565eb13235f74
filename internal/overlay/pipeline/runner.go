// Package pipeline runs the capture → detect → track → publish loop.
//
// This package is the composition root for a single camera: it imports the
// layer packages (l2detect, l3tracks) and the config store, but none of
// those import pipeline/.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/monitoring"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/timeutil"
)

// retryDelay is how long Run waits after a source reports ErrNoFrame.
const retryDelay = 5 * time.Millisecond

// Result is one processed frame, handed to every Publisher.
type Result struct {
	Seq         uint64
	Captured    time.Time
	ProcessedAt time.Time
	Latency     time.Duration
	Width       int
	Height      int
	Tracks      []l3tracks.Track
}

// Publisher receives each processed frame. Publish runs on the processing
// goroutine and must not block.
type Publisher interface {
	Publish(res Result)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Result)

func (f PublisherFunc) Publish(res Result) { f(res) }

// Config holds the Runner's collaborators. Source, Detector, Tracker and
// Tuning are required.
type Config struct {
	Source     l2detect.FrameSource
	Detector   l2detect.Detector
	Tracker    *l3tracks.Tracker
	Tuning     *config.Store
	Clock      timeutil.Clock
	Stats      *monitoring.FrameStats
	Publishers []Publisher
}

// Runner drives frames through the detector and tracker.
//
// At most one frame is in flight. A frame captured while the previous one is
// still being processed is dropped and counted; nothing is queued.
type Runner struct {
	cfg  Config
	busy atomic.Bool

	mu           sync.Mutex
	lastAccepted time.Time
	lastResult   Result
	haveResult   bool
}

// NewRunner validates cfg and fills optional fields.
func NewRunner(cfg Config) (*Runner, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case cfg.Detector == nil:
		return nil, errors.New("pipeline: detector is required")
	case cfg.Tracker == nil:
		return nil, errors.New("pipeline: tracker is required")
	case cfg.Tuning == nil:
		return nil, errors.New("pipeline: tuning store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = &monitoring.FrameStats{}
	}
	return &Runner{cfg: cfg}, nil
}

// Stats returns the runner's frame counters.
func (r *Runner) Stats() *monitoring.FrameStats { return r.cfg.Stats }

// Last returns the most recent result, if any.
func (r *Runner) Last() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult, r.haveResult
}

// Run reads frames until ctx is cancelled or the source is closed. It
// returns nil on a clean stop.
func (r *Runner) Run(ctx context.Context) error {
	work := make(chan l2detect.Frame, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for frame := range work {
			r.ProcessFrame(ctx, frame)
			r.busy.Store(false)
		}
	}()
	defer func() {
		close(work)
		<-done
	}()

	opsf("runner started")
	for {
		frame, err := r.cfg.Source.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			opsf("runner stopped: %v", err)
			return nil
		case errors.Is(err, l2detect.ErrClosed):
			opsf("runner stopped: source closed")
			return nil
		case errors.Is(err, l2detect.ErrNoFrame):
			select {
			case <-ctx.Done():
				return nil
			case <-r.cfg.Clock.After(retryDelay):
			}
			continue
		default:
			return fmt.Errorf("read frame: %w", err)
		}

		if !r.accept(frame) {
			continue
		}
		work <- frame
	}
}

// accept applies the frame-rate cap and the single-in-flight rule.
func (r *Runner) accept(frame l2detect.Frame) bool {
	interval := r.cfg.Tuning.Load().GetFrameInterval()
	captured := frame.Captured
	if captured.IsZero() {
		captured = r.cfg.Clock.Now()
	}

	r.mu.Lock()
	throttled := !r.lastAccepted.IsZero() && captured.Sub(r.lastAccepted) < interval
	r.mu.Unlock()
	if throttled {
		r.cfg.Stats.AddDropped()
		tracef("frame %d throttled", frame.Seq)
		return false
	}

	if !r.busy.CompareAndSwap(false, true) {
		r.cfg.Stats.AddDropped()
		tracef("frame %d dropped: previous frame still in flight", frame.Seq)
		return false
	}

	r.mu.Lock()
	r.lastAccepted = captured
	r.mu.Unlock()
	return true
}

// ProcessFrame runs detection and tracking for one frame synchronously and
// publishes the result. Detector failures skip the frame without touching
// the tracker, so a flaky detector does not fade live tracks.
func (r *Runner) ProcessFrame(ctx context.Context, frame l2detect.Frame) (Result, error) {
	start := r.cfg.Clock.Now()
	trackerCfg := l3tracks.TrackerConfigFromTuning(r.cfg.Tuning.Load())
	if cs, ok := r.cfg.Detector.(l2detect.ConfidenceSetter); ok {
		cs.SetMinConfidence(trackerCfg.DetectorFloor())
	}

	dets, err := r.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		r.cfg.Stats.AddDetectError()
		opsf("detect frame %d: %v", frame.Seq, err)
		return Result{}, fmt.Errorf("detect frame %d: %w", frame.Seq, err)
	}

	clean, invalid := l2detect.Sanitize(dets)
	if invalid > 0 {
		r.cfg.Stats.AddInvalid(invalid)
		diagf("frame %d: dropped %d invalid detections", frame.Seq, invalid)
	}

	tracks := r.cfg.Tracker.Update(clean, trackerCfg)

	now := r.cfg.Clock.Now()
	res := Result{
		Seq:         frame.Seq,
		Captured:    frame.Captured,
		ProcessedAt: now,
		Latency:     now.Sub(start),
		Width:       frame.Width,
		Height:      frame.Height,
		Tracks:      tracks,
	}
	r.cfg.Stats.AddProcessed(res.Latency)

	r.mu.Lock()
	r.lastResult = res
	r.haveResult = true
	r.mu.Unlock()

	for _, p := range r.cfg.Publishers {
		p.Publish(res)
	}
	tracef("frame %d: %d detections, %d tracks, %s", frame.Seq, len(clean), len(tracks), res.Latency)
	return res, nil
}
