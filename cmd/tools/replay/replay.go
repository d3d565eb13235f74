package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/timeutil"
)

// maxLineBytes bounds one input line; a frame with thousands of boxes fits.
const maxLineBytes = 4 << 20

// replayEpoch anchors t_ms offsets so output timestamps are reproducible.
var replayEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// inputFrame is one line of a detection log.
type inputFrame struct {
	TimeMillis int64                `json:"t_ms"`
	Detections []l2detect.Detection `json:"detections"`
}

// outputTrack is the per-track view written for each frame.
type outputTrack struct {
	ID         uint64              `json:"id"`
	Label      string              `json:"label"`
	Rect       l1geom.Rect         `json:"rect"`
	Confidence float64             `json:"confidence"`
	Alpha      float64             `json:"alpha"`
	State      l3tracks.TrackState `json:"state"`
}

type outputFrame struct {
	TimeMillis int64         `json:"t_ms"`
	Tracks     []outputTrack `json:"tracks"`
}

// Summary is written after the last frame.
type Summary struct {
	Frames  int              `json:"frames"`
	Removed int              `json:"removed"`
	Metrics l3tracks.Metrics `json:"metrics"`
}

// Replay feeds every frame of in through a fresh tracker, advancing a mock
// clock to each frame's t_ms, and writes one JSON line of tracks per frame
// to out. Frames must be in non-decreasing time order.
func Replay(in io.Reader, out io.Writer, cfg l3tracks.TrackerConfig) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}

	clock := timeutil.NewMockClock(replayEpoch)
	tracker := l3tracks.NewTracker(clock)
	var sum Summary
	tracker.SetRemovalHook(func(l3tracks.RemovedTrack) { sum.Removed++ })

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	enc := json.NewEncoder(out)

	var last int64
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var f inputFrame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		if sum.Frames > 0 && f.TimeMillis < last {
			return sum, fmt.Errorf("line %d: t_ms %d goes backwards (previous %d)", line, f.TimeMillis, last)
		}
		last = f.TimeMillis
		clock.Set(replayEpoch.Add(time.Duration(f.TimeMillis) * time.Millisecond))

		tracks := tracker.Update(f.Detections, cfg)
		sum.Frames++

		of := outputFrame{TimeMillis: f.TimeMillis, Tracks: make([]outputTrack, len(tracks))}
		for i, tr := range tracks {
			of.Tracks[i] = outputTrack{
				ID:         tr.ID,
				Label:      tr.Label,
				Rect:       tr.Rect,
				Confidence: tr.SmoothedConfidence,
				Alpha:      tr.Alpha,
				State:      tr.State,
			}
		}
		if err := enc.Encode(of); err != nil {
			return sum, fmt.Errorf("write frame %d: %w", sum.Frames, err)
		}
	}
	if err := sc.Err(); err != nil {
		return sum, fmt.Errorf("read input: %w", err)
	}
	sum.Metrics = tracker.Metrics()
	return sum, nil
}
