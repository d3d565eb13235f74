package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/monitoring"
	"github.com/banshee-data/overlay/internal/overlay/debug"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/overlay/pipeline"
	"github.com/banshee-data/overlay/internal/overlay/storage/sqlite"
	"github.com/banshee-data/overlay/internal/testutil"
	"github.com/banshee-data/overlay/internal/timeutil"
)

type fixture struct {
	ws        *WebServer
	tracker   *l3tracks.Tracker
	tuning    *config.Store
	collector *debug.Collector
	trails    *TrailPlotter
	clock     *timeutil.MockClock
}

func newFixture(t *testing.T, withDB bool) *fixture {
	t.Helper()
	f := &fixture{
		clock:     timeutil.NewMockClock(testutil.Epoch),
		tuning:    config.NewStore(config.DefaultTuningConfig()),
		collector: debug.NewCollector(),
		trails:    NewTrailPlotter(0, 0),
	}
	f.tracker = l3tracks.NewTracker(f.clock)
	f.tracker.SetDebugCollector(f.collector)

	cfg := WebServerConfig{
		Tracker:   f.tracker,
		Tuning:    f.tuning,
		Frames:    &monitoring.FrameStats{},
		Collector: f.collector,
		Trails:    f.trails,
	}
	if withDB {
		d := testutil.NewTestDB(t)
		sessions := sqlite.NewSessionStore(d.DB, f.clock)
		sess, err := sessions.Start(context.Background(), "test", "", nil)
		require.NoError(t, err)
		cfg.DB = d
		cfg.Sessions = sessions
		cfg.Tracks = sqlite.NewTrackStore(d.DB)
		cfg.SessionID = sess.ID
		require.NoError(t, cfg.Tracks.Insert(context.Background(), sqlite.TrackRecord{
			SessionID: sess.ID, TrackID: 9, Label: "person",
			FirstSeen: testutil.Epoch, LastSeen: testutil.Epoch, RemovedAt: testutil.Epoch, DetectionCount: 4,
		}))
	}
	ws, err := NewWebServer(cfg)
	require.NoError(t, err)
	f.ws = ws
	return f
}

func (f *fixture) frame(dets ...l2detect.Detection) []l3tracks.Track {
	f.clock.Advance(33 * time.Millisecond)
	tracks := f.tracker.Update(dets, l3tracks.TrackerConfigFromTuning(f.tuning.Load()))
	f.trails.Publish(pipeline.Result{Tracks: tracks})
	return tracks
}

func TestNewWebServer_RequiresTracker(t *testing.T) {
	_, err := NewWebServer(WebServerConfig{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := testutil.Serve(t, f.ws.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTracks(t *testing.T) {
	f := newFixture(t, false)
	f.frame(testutil.Det("person", 0.9, 0.1, 0.1, 0.1, 0.2), testutil.Det("car", 0.8, 0.6, 0.6, 0.2, 0.1))

	rec := testutil.Serve(t, f.ws.Handler(), http.MethodGet, "/api/tracks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tracks []l3tracks.Track `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tracks, 2)
	assert.Equal(t, "person", body.Tracks[0].Label, "ordered by smoothed confidence")
}

func TestStats(t *testing.T) {
	f := newFixture(t, true)
	f.frame(testutil.Det("person", 0.9, 0.1, 0.1, 0.1, 0.2))

	rec := testutil.Serve(t, f.ws.Handler(), http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(1), body.Tracker.Frames)
	assert.Equal(t, 1, body.Tracker.ActiveTracks)
	assert.NotEmpty(t, body.Session)
	assert.NotNil(t, body.Frames)
	assert.Nil(t, body.Stream)
}

func TestParams_GetAndPost(t *testing.T) {
	f := newFixture(t, false)
	h := f.ws.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/api/params", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"confidence_threshold"`)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/params", `{"confidence_threshold":0.7,"object_persistence":"1s"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0.7, f.tuning.Load().GetConfidenceThreshold())
	assert.Equal(t, time.Second, f.tuning.Load().GetObjectPersistence())
	assert.Equal(t, config.DefaultHistoryCap, f.tuning.Load().GetHistoryCap(), "unset fields keep their value")

	// The next frame uses the new threshold: 0.6 no longer spawns.
	assert.Empty(t, f.frame(testutil.Det("dog", 0.6, 0.4, 0.4, 0.1, 0.1)))
}

func TestParams_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"confidence_threshold":1.5}`},
		{"unknown field", `{"threshold":0.5}`},
		{"bad duration", `{"object_persistence":"soon"}`},
		{"malformed", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			before := f.tuning.Load()
			rec := testutil.Serve(t, f.ws.Handler(), http.MethodPost, "/api/params", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Same(t, before, f.tuning.Load(), "config unchanged on error")
		})
	}
}

func TestDebugFrame(t *testing.T) {
	f := newFixture(t, false)
	h := f.ws.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/api/debug/frame", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/debug/frame?enabled=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/debug/frame?enabled=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true}`, rec.Body.String())

	person := testutil.Det("person", 0.9, 0.1, 0.1, 0.1, 0.2)
	f.frame(person)
	f.frame(person)

	rec = testutil.Serve(t, h, http.MethodGet, "/api/debug/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var frame debug.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
	require.Len(t, frame.Associations, 1)
	assert.True(t, frame.Associations[0].Accepted)
}

func TestTrackHistoryAndSessions(t *testing.T) {
	f := newFixture(t, true)
	h := f.ws.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/api/tracks/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Tracks []sqlite.TrackRecord `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Tracks, 1)
	assert.Equal(t, uint64(9), hist.Tracks[0].TrackID)

	rec = testutil.Serve(t, h, http.MethodGet, "/api/tracks/history?session_id=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tracks":[]}`, rec.Body.String())

	rec = testutil.Serve(t, h, http.MethodGet, "/api/tracks/history?limit=-4", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(t, h, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"test"`)
}

func TestStoreEndpoints_Unavailable(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/api/tracks/history", "/api/sessions"} {
		rec := testutil.Serve(t, f.ws.Handler(), http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestTrackChart(t *testing.T) {
	f := newFixture(t, true)
	f.frame(testutil.Det("person", 0.9, 0.1, 0.1, 0.1, 0.2))

	rec := testutil.Serve(t, f.ws.Handler(), http.MethodGet, "/debug/charts/tracks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Live tracks")
	assert.Contains(t, body, "Stored tracks by label")
}

func TestTrailPlot(t *testing.T) {
	f := newFixture(t, false)
	h := f.ws.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/debug/plots/trails.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 3; i++ {
		f.frame(testutil.Det("person", 0.9, 0.1+0.02*float64(i), 0.1, 0.1, 0.2))
	}
	rec = testutil.Serve(t, h, http.MethodGet, "/debug/plots/trails.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	assert.NoError(t, err)
}
