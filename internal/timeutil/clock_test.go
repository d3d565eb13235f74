package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock_Monotonic(t *testing.T) {
	c := RealClock{}
	a := c.Now()
	b := c.Now()
	assert.GreaterOrEqual(t, b.Sub(a), time.Duration(0))
	assert.GreaterOrEqual(t, c.Since(a), time.Duration(0))
}

func TestMockClock_AdvanceAndSet(t *testing.T) {
	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, c.Since(epoch))

	c.Set(epoch.Add(-time.Second))
	assert.Equal(t, -time.Second, c.Since(epoch))
}

func TestMockClock_After(t *testing.T) {
	c := NewMockClock(epoch)
	ch := c.After(100 * time.Millisecond)

	c.Advance(50 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(100*time.Millisecond), got)
	default:
		t.Fatal("did not fire")
	}
}

func TestMockClock_AfterZero(t *testing.T) {
	c := NewMockClock(epoch)
	select {
	case got := <-c.After(0):
		assert.Equal(t, epoch, got)
	default:
		t.Fatal("zero duration should fire immediately")
	}
}

func TestMockTicker(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)

	c.Advance(time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("expected tick")
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker ticked")
	default:
	}

	mt, ok := tk.(*MockTicker)
	require.True(t, ok)
	mt.Trigger(epoch)
	select {
	case got := <-tk.C():
		assert.Equal(t, epoch, got)
	default:
		t.Fatal("Trigger did not deliver")
	}
}
