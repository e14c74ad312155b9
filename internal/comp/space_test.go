package comp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezemtsov/ewm/internal/geom"
)

func TestOutputSizeBoundingBox(t *testing.T) {
	sp := NewSpace()
	assert.Equal(t, geom.Size{}, sp.OutputSize())

	sp.MapOutput("eDP-1", geom.Rect{X: 0, Y: 0, W: 1920, H: 1080})
	assert.Equal(t, geom.Size{W: 1920, H: 1080}, sp.OutputSize())

	sp.MapOutput("HDMI-A-1", geom.Rect{X: 1920, Y: 0, W: 2560, H: 1440})
	assert.Equal(t, geom.Size{W: 4480, H: 1440}, sp.OutputSize())

	sp.UnmapOutput("HDMI-A-1")
	assert.Equal(t, geom.Size{W: 1920, H: 1080}, sp.OutputSize())
}

func TestOutputAtHalfOpen(t *testing.T) {
	sp := NewSpace()
	sp.MapOutput("O1", geom.Rect{X: 0, Y: 0, W: 1920, H: 1080})
	sp.MapOutput("O2", geom.Rect{X: 1920, Y: 0, W: 1920, H: 1080})

	name, ok := sp.OutputAt(1919, 500)
	assert.True(t, ok)
	assert.Equal(t, "O1", name)

	name, ok = sp.OutputAt(1920, 500)
	assert.True(t, ok)
	assert.Equal(t, "O2", name)

	_, ok = sp.OutputAt(4000, 500)
	assert.False(t, ok)
}

func TestSurfaceStackingAndHitTest(t *testing.T) {
	sp := NewSpace()
	a := &Surface{ID: 1, Size: geom.Size{W: 100, H: 100}}
	b := &Surface{ID: 2, Size: geom.Size{W: 100, H: 100}}

	sp.MapSurface(a, geom.Point{X: 0, Y: 0}, true)
	sp.MapSurface(b, geom.Point{X: 50, Y: 50}, true)

	// b is on top where they overlap
	s, local, ok := sp.SurfaceUnder(60, 60)
	assert.True(t, ok)
	assert.Equal(t, b, s)
	assert.Equal(t, geom.Point{X: 10, Y: 10}, local)

	sp.Raise(a)
	s, _, _ = sp.SurfaceUnder(60, 60)
	assert.Equal(t, a, s)

	_, _, ok = sp.SurfaceUnder(500, 500)
	assert.False(t, ok)
}

func TestUnmapSurface(t *testing.T) {
	sp := NewSpace()
	a := &Surface{ID: 1, Size: geom.Size{W: 10, H: 10}}
	sp.MapSurface(a, geom.Point{}, false)
	sp.UnmapSurface(a)

	assert.Empty(t, sp.Surfaces())
	_, ok := sp.SurfaceLocation(a)
	assert.False(t, ok)
}
