package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the old callback")
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestFrameStats(t *testing.T) {
	var s FrameStats

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddProcessed(4 * time.Millisecond)
			s.AddDropped()
		}()
	}
	wg.Wait()
	s.AddInvalid(3)
	s.AddDetectError()

	snap := s.Snapshot()
	assert.Equal(t, uint64(10), snap.Processed)
	assert.Equal(t, uint64(10), snap.Dropped)
	assert.Equal(t, uint64(3), snap.InvalidDets)
	assert.Equal(t, uint64(1), snap.DetectErrors)
	assert.Equal(t, 4*time.Millisecond, snap.LastLatency)
	assert.InDelta(t, 4.0, snap.LastLatencyMs, 1e-9)
}
