package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/geom"
)

func pixel(t *testing.T, img *Image, x, y int) (b, g, r byte) {
	t.Helper()
	off := y*img.Stride + x*4
	return img.Data[off], img.Data[off+1], img.Data[off+2]
}

func solidImage(w, h int, format Fourcc, b, g, r, a byte) *Image {
	img := NewImage(w, h, format)
	for i := 0; i < len(img.Data); i += 4 {
		img.Data[i] = b
		img.Data[i+1] = g
		img.Data[i+2] = r
		img.Data[i+3] = a
	}
	return img
}

func TestRenderClearColor(t *testing.T) {
	r := New()
	target := NewImage(16, 16, FourccXrgb8888)

	out, err := r.RenderElements(target, geom.TransformNormal, 1, nil, ColorFromRGB(0x112233), nil)
	require.NoError(t, err)
	assert.False(t, out.Empty)

	b, g, rr := pixel(t, target, 8, 8)
	assert.Equal(t, byte(0x33), b)
	assert.Equal(t, byte(0x22), g)
	assert.Equal(t, byte(0x11), rr)
}

func TestRenderSurfaceElement(t *testing.T) {
	r := New()
	target := NewImage(16, 16, FourccXrgb8888)
	buf := solidImage(4, 4, FourccXrgb8888, 0, 0, 0xff, 0xff) // red

	el := NewSurfaceElement(NextElementID(), 1, buf, geom.Point{X: 2, Y: 2}, nil)
	_, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{el}, Color{}, nil)
	require.NoError(t, err)

	_, _, red := pixel(t, target, 3, 3)
	assert.Equal(t, byte(0xff), red)
	_, _, outside := pixel(t, target, 10, 10)
	assert.Equal(t, byte(0), outside)
}

func TestRenderFrontToBackOrder(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)

	red := NewSurfaceElement(NextElementID(), 1,
		solidImage(8, 8, FourccXrgb8888, 0, 0, 0xff, 0xff), geom.Point{}, nil)
	blue := NewSurfaceElement(NextElementID(), 1,
		solidImage(8, 8, FourccXrgb8888, 0xff, 0, 0, 0xff), geom.Point{}, nil)

	// red is in front (first in the list), so it wins
	_, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{red, blue}, Color{}, nil)
	require.NoError(t, err)

	b, _, rr := pixel(t, target, 4, 4)
	assert.Equal(t, byte(0xff), rr)
	assert.Equal(t, byte(0), b)
}

func TestRenderAlphaBlending(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)

	// Premultiplied half-transparent green over opaque red.
	green := NewSurfaceElement(NextElementID(), 1,
		solidImage(8, 8, FourccArgb8888, 0, 0x80, 0, 0x80), geom.Point{}, nil)
	red := NewSurfaceElement(NextElementID(), 1,
		solidImage(8, 8, FourccXrgb8888, 0, 0, 0xff, 0xff), geom.Point{}, nil)

	_, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{green, red}, Color{}, nil)
	require.NoError(t, err)

	_, g, rr := pixel(t, target, 4, 4)
	assert.Equal(t, byte(0x80), g)
	assert.InDelta(t, 0x7f, int(rr), 2)
}

func TestDamageTrackerReportsEmptyOnStaticScene(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)
	tracker := NewDamageTracker()
	buf := solidImage(4, 4, FourccXrgb8888, 0, 0, 0xff, 0xff)
	el := NewSurfaceElement(NextElementID(), 7, buf, geom.Point{}, nil)

	out, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{el}, Color{}, tracker)
	require.NoError(t, err)
	assert.False(t, out.Empty, "first frame always has damage")

	out, err = r.RenderElements(target, geom.TransformNormal, 1, []Element{el}, Color{}, tracker)
	require.NoError(t, err)
	assert.True(t, out.Empty, "unchanged scene has no damage")

	// A new commit on the same surface damages the frame again.
	el2 := NewSurfaceElement(el.ID(), 8, buf, geom.Point{}, nil)
	out, err = r.RenderElements(target, geom.TransformNormal, 1, []Element{el2}, Color{}, tracker)
	require.NoError(t, err)
	assert.False(t, out.Empty)
}

func TestDamageTrackerMovedElement(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)
	tracker := NewDamageTracker()
	buf := solidImage(4, 4, FourccXrgb8888, 0, 0, 0xff, 0xff)

	el := NewSurfaceElement(NextElementID(), 1, buf, geom.Point{}, nil)
	_, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{el}, Color{}, tracker)
	require.NoError(t, err)

	moved := NewSurfaceElement(el.ID(), 1, buf, geom.Point{X: 2}, nil)
	out, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{moved}, Color{}, tracker)
	require.NoError(t, err)
	assert.False(t, out.Empty, "moving an element is damage")
}

func TestEmptyElementListSteadyStateIsEmpty(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)
	tracker := NewDamageTracker()

	out, err := r.RenderElements(target, geom.TransformNormal, 1, nil, ColorFromRGB(0x1a1a1a), tracker)
	require.NoError(t, err)
	assert.False(t, out.Empty, "first clear is visible damage")

	out, err = r.RenderElements(target, geom.TransformNormal, 1, nil, ColorFromRGB(0x1a1a1a), tracker)
	require.NoError(t, err)
	assert.True(t, out.Empty, "a static empty scene takes the no-damage branch")
}

func TestTrackerResetForcesDamage(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)
	tracker := NewDamageTracker()

	_, err := r.RenderElements(target, geom.TransformNormal, 1, nil, Color{}, tracker)
	require.NoError(t, err)
	tracker.Reset()

	out, err := r.RenderElements(target, geom.TransformNormal, 1, nil, Color{}, tracker)
	require.NoError(t, err)
	assert.False(t, out.Empty)
}

func TestOpaqueElementOccludesBehind(t *testing.T) {
	r := New()
	target := NewImage(8, 8, FourccXrgb8888)

	// The opaque front element fully covers the back one, so the back one
	// is not drawn and the pixels are the front's.
	front := NewSurfaceElement(NextElementID(), 1,
		solidImage(8, 8, FourccXrgb8888, 0, 0xff, 0, 0xff), geom.Point{}, nil)
	back := NewSurfaceElement(NextElementID(), 1,
		solidImage(8, 8, FourccXrgb8888, 0, 0, 0xff, 0xff), geom.Point{}, nil)

	_, err := r.RenderElements(target, geom.TransformNormal, 1, []Element{front, back}, Color{}, nil)
	require.NoError(t, err)

	_, g, rr := pixel(t, target, 4, 4)
	assert.Equal(t, byte(0xff), g)
	assert.Equal(t, byte(0), rr)
}

func TestRelocatedElements(t *testing.T) {
	buf := solidImage(4, 4, FourccXrgb8888, 0, 0, 0xff, 0xff)
	el := NewSurfaceElement(NextElementID(), 1, buf, geom.Point{X: 100, Y: 100}, nil)

	relocated := Relocate([]Element{el}, geom.Point{X: -100, Y: -100})
	require.Len(t, relocated, 1)
	assert.Equal(t, geom.Rect{X: 0, Y: 0, W: 4, H: 4}, relocated[0].Geometry(1))
}
