package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
)

const personLog = `# person walks right, then leaves
{"t_ms":0,"detections":[{"label":"person","confidence":0.9,"box":{"x":0.10,"y":0.2,"w":0.1,"h":0.3}}]}
{"t_ms":33,"detections":[{"label":"person","confidence":0.9,"box":{"x":0.11,"y":0.2,"w":0.1,"h":0.3}}]}

{"t_ms":66,"detections":[{"label":"person","confidence":0.9,"box":{"x":0.12,"y":0.2,"w":0.1,"h":0.3}}]}
{"t_ms":1500,"detections":[]}
`

func decodeFrames(t *testing.T, out []byte) []outputFrame {
	t.Helper()
	var frames []outputFrame
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		var f outputFrame
		require.NoError(t, json.Unmarshal(sc.Bytes(), &f))
		frames = append(frames, f)
	}
	require.NoError(t, sc.Err())
	return frames
}

func TestReplay_TrackLifecycle(t *testing.T) {
	var out bytes.Buffer
	sum, err := Replay(strings.NewReader(personLog), &out, l3tracks.DefaultTrackerConfig())
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, uint64(1), sum.Metrics.TracksCreated)
	assert.Equal(t, uint64(1), sum.Metrics.TracksConfirmed)

	frames := decodeFrames(t, out.Bytes())
	require.Len(t, frames, 4)
	assert.Equal(t, l3tracks.TrackPending, frames[0].Tracks[0].State)
	assert.Equal(t, l3tracks.TrackConfirmed, frames[2].Tracks[0].State)
	assert.Greater(t, frames[2].Tracks[0].Alpha, frames[0].Tracks[0].Alpha)
	for _, f := range frames[:3] {
		require.Len(t, f.Tracks, 1)
		assert.Equal(t, uint64(1), f.Tracks[0].ID, "identity kept across frames")
	}
	assert.Empty(t, frames[3].Tracks)
}

func TestReplay_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"malformed", `{"t_ms":0,`, "line 1"},
		{"backwards", "{\"t_ms\":50}\n{\"t_ms\":10}\n", "goes backwards"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Replay(strings.NewReader(tt.input), &bytes.Buffer{}, l3tracks.DefaultTrackerConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReplay_RejectsInvalidConfig(t *testing.T) {
	cfg := l3tracks.DefaultTrackerConfig()
	cfg.SmoothingFactor = 2
	_, err := Replay(strings.NewReader(""), &bytes.Buffer{}, cfg)
	assert.Error(t, err)
}
