package sqlite

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
)

// DefaultRecorderBuffer is the queue length used when RecorderConfig.Buffer
// is zero.
const DefaultRecorderBuffer = 256

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Store     *TrackStore
	SessionID string
	// Buffer bounds the queue between the tracker and the writer.
	Buffer int
	// Logger is optional; nil uses log.Default().
	Logger *log.Logger
}

// Recorder persists confirmed tracks as they leave the tracker.
//
// Hook is installed as the tracker's removal hook. It runs with the tracker
// lock held, so it only enqueues; Run does the writes. When the queue is
// full, or Run has already stopped, the record is dropped and counted
// rather than stalling the frame loop. Flush the tracker before cancelling
// Run to keep live tracks.
type Recorder struct {
	store     *TrackStore
	sessionID string
	logger    *log.Logger
	queue     chan TrackRecord

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	mu      sync.Mutex // orders Hook's enqueue against Run stopping
	stopped bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder returns a Recorder. Call Run to start writing.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultRecorderBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Recorder{
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		logger:    cfg.Logger,
		queue:     make(chan TrackRecord, cfg.Buffer),
		done:      make(chan struct{}),
	}
}

// Hook matches l3tracks.RemovalHook. Tracks that never reached Confirmed
// are not stored.
func (r *Recorder) Hook(rt l3tracks.RemovedTrack) {
	if !rt.WasConfirmed {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- RecordFromRemoved(r.sessionID, rt):
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued records until ctx is cancelled, then drains what is
// left. Writes are not cancelled with ctx so a shutdown does not lose rows
// already queued. It returns nil on clean shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.closeOnce.Do(func() { close(r.done) })
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case rec := <-r.queue:
			r.write(wctx, rec)
		case <-ctx.Done():
			r.mu.Lock()
			r.stopped = true
			r.mu.Unlock()
			r.drain(wctx)
			return nil
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec TrackRecord) {
	if err := r.store.Insert(ctx, rec); err != nil {
		r.failed.Add(1)
		r.logger.Printf("[recorder] %v", err)
		return
	}
	r.written.Add(1)
}

// RecorderStats counts what happened to queued tracks.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns the current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}
