// Package monitoring holds the process-wide diagnostic logger and the frame
// counters shared by the pipeline and the HTTP monitor.
package monitoring

import (
	"log"
	"sync/atomic"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger so tests can capture or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// FrameStats counts frames through the pipeline. All methods are safe for
// concurrent use.
type FrameStats struct {
	processed    atomic.Uint64
	dropped      atomic.Uint64
	invalid      atomic.Uint64
	detectErrors atomic.Uint64
	lastLatency  atomic.Int64 // nanoseconds
}

// FrameStatsSnapshot is a point-in-time copy of FrameStats.
type FrameStatsSnapshot struct {
	Processed     uint64        `json:"processed"`
	Dropped       uint64        `json:"dropped"`
	InvalidDets   uint64        `json:"invalid_detections"`
	DetectErrors  uint64        `json:"detect_errors"`
	LastLatency   time.Duration `json:"-"`
	LastLatencyMs float64       `json:"last_latency_ms"`
}

func (s *FrameStats) AddProcessed(latency time.Duration) {
	s.processed.Add(1)
	s.lastLatency.Store(int64(latency))
}

func (s *FrameStats) AddDropped()      { s.dropped.Add(1) }
func (s *FrameStats) AddInvalid(n int) { s.invalid.Add(uint64(n)) }
func (s *FrameStats) AddDetectError()  { s.detectErrors.Add(1) }

// Snapshot returns the current counter values.
func (s *FrameStats) Snapshot() FrameStatsSnapshot {
	lat := time.Duration(s.lastLatency.Load())
	return FrameStatsSnapshot{
		Processed:     s.processed.Load(),
		Dropped:       s.dropped.Load(),
		InvalidDets:   s.invalid.Load(),
		DetectErrors:  s.detectErrors.Load(),
		LastLatency:   lat,
		LastLatencyMs: float64(lat) / float64(time.Millisecond),
	}
}
