package l1geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRect_Center(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    Rect
		want Point
	}{
		{"centre of frame", Rect{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, Point{X: 0.5, Y: 0.5}},
		{"top left", Rect{X: 0, Y: 0, W: 0.2, H: 0.2}, Point{X: 0.1, Y: 0.1}},
		{"bottom right", Rect{X: 0.8, Y: 0.8, W: 0.2, H: 0.2}, Point{X: 0.9, Y: 0.9}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.r.Center()
			assert.InDelta(t, tc.want.X, got.X, 1e-12)
			assert.InDelta(t, tc.want.Y, got.Y, 1e-12)
		})
	}
}

func TestRectFromCenter_RoundTrip(t *testing.T) {
	t.Parallel()
	r := Rect{X: 0.1, Y: 0.3, W: 0.2, H: 0.4}
	back := RectFromCenter(r.Center(), r.Size())
	assert.InDelta(t, r.X, back.X, 1e-12)
	assert.InDelta(t, r.Y, back.Y, 1e-12)
	assert.Equal(t, r.W, back.W)
	assert.Equal(t, r.H, back.H)
}

func TestIoU(t *testing.T) {
	t.Parallel()

	a := Rect{X: 0, Y: 0, W: 0.2, H: 0.2}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-12, "identical boxes")
	assert.Equal(t, 0.0, IoU(a, Rect{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}), "disjoint boxes")

	// Half overlap along X: inter = 0.1*0.2, union = 2*0.04 - 0.02.
	b := Rect{X: 0.1, Y: 0, W: 0.2, H: 0.2}
	assert.InDelta(t, 0.02/0.06, IoU(a, b), 1e-12)

	// Zero union must not divide by zero.
	z := Rect{}
	assert.Equal(t, 0.0, IoU(z, z))
}

func TestRect_IsValid(t *testing.T) {
	t.Parallel()
	assert.True(t, Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}.IsValid())
	assert.False(t, Rect{X: 0.1, Y: 0.1, W: 0, H: 0.2}.IsValid())
	assert.False(t, Rect{X: 0.1, Y: 0.1, W: 0.2, H: -0.1}.IsValid())
	assert.False(t, Rect{X: math.NaN(), Y: 0.1, W: 0.2, H: 0.2}.IsValid())
	assert.False(t, Rect{X: 0.1, Y: 0.1, W: math.Inf(1), H: 0.2}.IsValid())
}

func TestCenterDistance(t *testing.T) {
	t.Parallel()
	a := Rect{X: 0, Y: 0, W: 0.2, H: 0.2}
	b := Rect{X: 0.3, Y: 0.4, W: 0.2, H: 0.2}
	assert.InDelta(t, 0.5, CenterDistance(a, b), 1e-12)
}

func TestClamp01(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
}
