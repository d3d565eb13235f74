package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/timeutil"
)

var epoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// chanSource yields frames sent on ch and reports ErrClosed once ch is closed.
type chanSource struct {
	ch chan l2detect.Frame
}

func (s *chanSource) Read(ctx context.Context) (l2detect.Frame, error) {
	select {
	case <-ctx.Done():
		return l2detect.Frame{}, ctx.Err()
	case f, ok := <-s.ch:
		if !ok {
			return l2detect.Frame{}, l2detect.ErrClosed
		}
		return f, nil
	}
}

func (s *chanSource) Close() error { return nil }

func oneBox(context.Context, l2detect.Frame) ([]l2detect.Detection, error) {
	return []l2detect.Detection{{
		Label:      "person",
		Confidence: 0.9,
		Box:        l1geom.Rect{X: 0.2, Y: 0.2, W: 0.1, H: 0.2},
	}}, nil
}

func newTestRunner(t *testing.T, det l2detect.Detector, src l2detect.FrameSource, pubs ...Publisher) (*Runner, *config.Store) {
	t.Helper()
	store := config.NewStore(config.DefaultTuningConfig())
	clk := timeutil.NewMockClock(epoch)
	r, err := NewRunner(Config{
		Source:     src,
		Detector:   det,
		Tracker:    l3tracks.NewTracker(clk),
		Tuning:     store,
		Clock:      clk,
		Publishers: pubs,
	})
	require.NoError(t, err)
	return r, store
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(Config{})
	assert.Error(t, err)

	_, err = NewRunner(Config{Source: &chanSource{}, Detector: l2detect.DetectorFunc(oneBox)})
	assert.Error(t, err)
}

func TestProcessFrame_PublishesTracks(t *testing.T) {
	var got []Result
	r, _ := newTestRunner(t, l2detect.DetectorFunc(oneBox), &chanSource{},
		PublisherFunc(func(res Result) { got = append(got, res) }))

	res, err := r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 7, Captured: epoch, Width: 640, Height: 480})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, uint64(7), res.Seq)
	assert.Equal(t, 640, res.Width)

	require.Len(t, got, 1)
	assert.Equal(t, res.Tracks, got[0].Tracks)

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), last.Seq)
	assert.Equal(t, uint64(1), r.Stats().Snapshot().Processed)
}

func TestProcessFrame_DetectErrorSkipsTracker(t *testing.T) {
	boom := errors.New("inference failed")
	calls := 0
	det := l2detect.DetectorFunc(func(ctx context.Context, f l2detect.Frame) ([]l2detect.Detection, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return oneBox(ctx, f)
	})
	r, _ := newTestRunner(t, det, &chanSource{})

	_, err := r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 1})
	require.NoError(t, err)
	_, err = r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 2})
	assert.ErrorIs(t, err, boom)

	last, _ := r.Last()
	assert.Equal(t, uint64(1), last.Seq)
	assert.Equal(t, uint64(1), r.Stats().Snapshot().DetectErrors)
	assert.Equal(t, l3tracks.TrackPending, last.Tracks[0].State, "a failed frame must not fade tracks")
}

func TestProcessFrame_CountsInvalidDetections(t *testing.T) {
	det := l2detect.DetectorFunc(func(context.Context, l2detect.Frame) ([]l2detect.Detection, error) {
		return []l2detect.Detection{
			{Label: "car", Confidence: 0.9, Box: l1geom.Rect{X: 0.1, Y: 0.1, W: -0.1, H: 0.1}},
			{Label: "car", Confidence: 0.9, Box: l1geom.Rect{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}},
		}, nil
	})
	var diag bytes.Buffer
	SetLogOutput(&diag, LogDiag)
	defer SetLogOutput(nil, LogQuiet)

	r, _ := newTestRunner(t, det, &chanSource{})
	res, err := r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 3})
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 1)
	assert.Equal(t, uint64(1), r.Stats().Snapshot().InvalidDets)
	assert.Contains(t, diag.String(), "dropped 1 invalid detections")
	assert.NotContains(t, diag.String(), "detections, 1 tracks", "trace lines muted at diag level")
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"": LogOps, "off": LogQuiet, "diag": LogDiag, "trace": LogTrace} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestProcessFrame_ReadsTuningEveryFrame(t *testing.T) {
	r, store := newTestRunner(t, l2detect.DetectorFunc(oneBox), &chanSource{})

	res, err := r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.3, res.Tracks[0].Alpha)

	off := false
	_, err = store.Update(&config.TuningConfig{SmoothingEnabled: &off})
	require.NoError(t, err)

	res, err = r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Tracks[0].Alpha)
}

// floorDetector records the confidence floor the runner hands it.
type floorDetector struct {
	l2detect.DetectorFunc
	floors []float64
}

func (d *floorDetector) SetMinConfidence(c float64) { d.floors = append(d.floors, c) }

func TestProcessFrame_DetectorFloorFollowsTuning(t *testing.T) {
	det := &floorDetector{DetectorFunc: oneBox}
	r, store := newTestRunner(t, det, &chanSource{})

	_, err := r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 1})
	require.NoError(t, err)

	threshold, margin := 0.3, 0.1
	_, err = store.Update(&config.TuningConfig{ConfidenceThreshold: &threshold, HysteresisMargin: &margin})
	require.NoError(t, err)
	_, err = r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 2})
	require.NoError(t, err)

	threshold = 0.1
	_, err = store.Update(&config.TuningConfig{ConfidenceThreshold: &threshold})
	require.NoError(t, err)
	_, err = r.ProcessFrame(context.Background(), l2detect.Frame{Seq: 3})
	require.NoError(t, err)

	require.Len(t, det.floors, 3)
	assert.InDelta(t, 0.4, det.floors[0], 1e-9, "defaults: 0.5 - 0.1")
	assert.InDelta(t, 0.2, det.floors[1], 1e-9)
	assert.InDelta(t, l3tracks.MinDetectorConfidence, det.floors[2], 1e-9, "clamped")
}

func TestAccept_Throttle(t *testing.T) {
	r, _ := newTestRunner(t, l2detect.DetectorFunc(oneBox), &chanSource{})

	assert.True(t, r.accept(l2detect.Frame{Seq: 1, Captured: epoch}))
	r.busy.Store(false)

	// 30 fps cap: 10ms later is too soon.
	assert.False(t, r.accept(l2detect.Frame{Seq: 2, Captured: epoch.Add(10 * time.Millisecond)}))
	assert.True(t, r.accept(l2detect.Frame{Seq: 3, Captured: epoch.Add(40 * time.Millisecond)}))
	assert.Equal(t, uint64(1), r.Stats().Snapshot().Dropped)
}

func TestRun_DropsWhileBusy(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	det := l2detect.DetectorFunc(func(ctx context.Context, f l2detect.Frame) ([]l2detect.Detection, error) {
		entered <- struct{}{}
		<-release
		return oneBox(ctx, f)
	})
	src := &chanSource{ch: make(chan l2detect.Frame)}
	r, _ := newTestRunner(t, det, src)

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(context.Background()) }()

	src.ch <- l2detect.Frame{Seq: 1, Captured: epoch}
	<-entered
	src.ch <- l2detect.Frame{Seq: 2, Captured: epoch.Add(time.Second)}
	src.ch <- l2detect.Frame{Seq: 3, Captured: epoch.Add(2 * time.Second)}
	close(src.ch)
	close(release)

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	snap := r.Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.Processed)
	assert.Equal(t, uint64(2), snap.Dropped)
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &chanSource{ch: make(chan l2detect.Frame)}
	r, _ := newTestRunner(t, l2detect.DetectorFunc(oneBox), src)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
