package l3tracks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/overlay/internal/overlay/l2detect"
)

func TestComputeMetrics_Empty(t *testing.T) {
	m := computeMetrics(counters{frames: 3}, nil)
	assert.Equal(t, uint64(3), m.Frames)
	assert.Zero(t, m.ActiveTracks)
	assert.Zero(t, m.MeanAlpha)
	assert.Zero(t, m.FragmentationRatio)
}

func TestComputeMetrics_LiveTracks(t *testing.T) {
	arena := arenaOf(
		det("a", 0.6, 0.1, 0.1, 0.1, 0.1),
		det("b", 0.8, 0.1, 0.1, 0.1, 0.1),
	)
	arena[1].State = TrackFading

	m := computeMetrics(counters{removed: 4, removedUnconfirm: 1}, arena)
	assert.Equal(t, 2, m.ActiveTracks)
	assert.Equal(t, 1, m.FadingTracks)
	assert.InDelta(t, 0.3, m.MeanAlpha, 1e-12)
	assert.InDelta(t, 0.7, m.MeanConfidence, 1e-12)
	assert.Greater(t, m.StdConfidence, 0.0)
	assert.Equal(t, 0.8, m.MaxConfidence)
	assert.Equal(t, 0.25, m.FragmentationRatio)
}

func TestComputeMetrics_SingleTrackHasZeroStd(t *testing.T) {
	m := computeMetrics(counters{}, arenaOf(det("a", 0.6, 0.1, 0.1, 0.1, 0.1)))
	assert.Zero(t, m.StdConfidence)
}

func TestMetrics_FragmentationFromTracker(t *testing.T) {
	tr, clk := newTestTracker()
	cfg := DefaultTrackerConfig()

	// One flicker that never confirms.
	tr.Update([]l2detect.Detection{det("cat", 0.9, 0.1, 0.1, 0.1, 0.1)}, cfg)
	clk.Advance(time.Second)
	tr.Update(nil, cfg)

	// One that confirms, then leaves.
	for i := 0; i < 3; i++ {
		tr.Update([]l2detect.Detection{det("dog", 0.9, 0.5, 0.5, 0.1, 0.1)}, cfg)
		clk.Advance(frameStep)
	}
	clk.Advance(time.Second)
	tr.Update(nil, cfg)

	m := tr.Metrics()
	assert.Equal(t, uint64(2), m.TracksCreated)
	assert.Equal(t, uint64(1), m.TracksConfirmed)
	assert.Equal(t, uint64(2), m.TracksRemoved)
	assert.Equal(t, 0.5, m.FragmentationRatio)
}
